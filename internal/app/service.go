// Package app wires configuration, venue adapter, candle cache, strategy and
// ticker driver into one running engine.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candlebot/config"
	"candlebot/internal/domain"
	"candlebot/internal/ports"
	"candlebot/internal/strategy"
	"candlebot/internal/ticker"
)

// chartLimit bounds the in-memory candle buffer.
const chartLimit = 1000

// Service orchestrates one engine run: preload, driver selection and the
// operator-facing trade commands.
type Service struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeAdapter
	repo     ports.CandleRepository

	chart    *domain.Chart
	strategy ports.Strategy
	driver   ticker.Driver
}

// NewService builds the service and its strategy. The venue adapter matching
// cfg.Exchange is injected by the caller.
func NewService(cfg *config.Config, logger ports.Logger, exchange ports.ExchangeAdapter, repo ports.CandleRepository) (*Service, error) {
	if cfg == nil || logger == nil || exchange == nil || repo == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}

	chart := domain.NewChart(cfg.Pair, cfg.Interval.Seconds(), chartLimit)
	strat, err := strategy.New(cfg.Strategy, strategy.Deps{
		Chart:           chart,
		Exchange:        exchange,
		Mode:            cfg.Mode,
		Budget:          cfg.Budget,
		StopLossPercent: cfg.StopLossPercent,
		Logger:          logger,
	}, cfg.StrategyArgs)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		repo:     repo,
		chart:    chart,
		strategy: strat,
	}, nil
}

// Strategy exposes the running strategy for reporting.
func (s *Service) Strategy() ports.Strategy { return s.strategy }

// OpenTrade opens a position on operator request, serialized with the driver
// by the strategy.
func (s *Service) OpenTrade(ctx context.Context) error {
	return s.strategy.OpenTrade(ctx, s.cfg.StopLossPercent)
}

// CloseTrade closes the open position on operator request.
func (s *Service) CloseTrade(ctx context.Context) error {
	return s.strategy.CloseTrade(ctx)
}

// Pause suspends candle delivery; Resume continues it.
func (s *Service) Pause() {
	if s.driver != nil {
		s.driver.Pause()
	}
}

func (s *Service) Resume() {
	if s.driver != nil {
		s.driver.Resume()
	}
}

// Run executes the engine until the context is canceled, a shutdown signal
// arrives, or (in backtest mode) the candle sequence is exhausted.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	driver, err := s.buildDriver(ctx)
	if err != nil {
		return err
	}
	s.driver = driver

	if err := driver.Start(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "Engine started", map[string]interface{}{
		"pair":     s.cfg.Pair.String(),
		"interval": string(s.cfg.Interval),
		"mode":     string(s.cfg.Mode),
		"venue":    string(s.exchange.ID()),
	})

	select {
	case <-ctx.Done():
		driver.Stop()
		<-driver.Done()
	case <-driver.Done():
	}

	s.report(ctx)
	return nil
}

// buildDriver preloads history and constructs the ticker driver for the mode.
func (s *Service) buildDriver(ctx context.Context) (ticker.Driver, error) {
	onTick := func(ctx context.Context, c *domain.Candle) { s.strategy.OnTick(ctx, c) }
	onRealtime := func(ctx context.Context, c *domain.Candle) { s.strategy.OnRealtimeTick(ctx, c) }

	if s.cfg.Mode == domain.ModeBacktest {
		candles, err := s.loadRange(ctx, s.cfg.BacktestStart, s.cfg.BacktestEnd)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			return nil, fmt.Errorf("no candles available for backtest window %s..%s",
				s.cfg.BacktestStart.Format(time.RFC3339), s.cfg.BacktestEnd.Format(time.RFC3339))
		}
		// The replayed sequence carries its own warm-up prefix.
		s.strategy.OnPreload(ctx, nil, s.cfg.Preload)
		return ticker.NewBacktest(candles, s.cfg.BacktestTick, onTick, s.logger)
	}

	seed, err := s.preload(ctx)
	if err != nil {
		return nil, err
	}

	if s.cfg.Ticker == config.TickerWebsocket {
		streamer, ok := s.exchange.(ports.KlineStreamer)
		if !ok {
			return nil, fmt.Errorf("%w: venue %s has no kline stream, set TICKER=poll", ports.ErrConfiguration, s.exchange.ID())
		}
		return ticker.NewWebSocket(streamer, s.cfg.Pair, s.cfg.Interval, seed, onTick, onRealtime, s.logger)
	}
	return ticker.NewLive(s.exchange, s.cfg.Pair, s.cfg.Interval.Seconds(), s.cfg.Tick, onTick, s.logger)
}

// preload seeds the strategy chart with the most recent Preload candles and
// returns the venue's in-progress candle, if any.
func (s *Service) preload(ctx context.Context) (*domain.Candle, error) {
	if s.cfg.Preload == 0 {
		return nil, nil
	}

	period := time.Duration(s.cfg.Interval.Seconds()) * time.Second
	end := time.Now().UTC()
	start := end.Add(-time.Duration(s.cfg.Preload) * period)

	candles, err := s.loadRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var seed *domain.Candle
	if len(candles) > 0 {
		s.strategy.OnPreload(ctx, candles, 0)
	}
	if s.cfg.Ticker == config.TickerWebsocket {
		// Ask the venue for the current bucket so the stream continues the
		// bar already in progress.
		_, inProgress, err := s.exchange.GetCandles(ctx, s.cfg.Pair, s.cfg.Interval, end.Add(-period), end)
		if err != nil {
			s.logger.Warn(ctx, "could not fetch the in-progress candle, stream starts cold", map[string]interface{}{"error": err.Error()})
		} else {
			seed = inProgress
		}
	}
	return seed, nil
}

// loadRange reads candles cache-first: a full cache window is served locally,
// anything else is fetched from the venue and written back.
func (s *Service) loadRange(ctx context.Context, start, end time.Time) ([]*domain.Candle, error) {
	periodSeconds := s.cfg.Interval.Seconds()
	period := time.Duration(periodSeconds) * time.Second

	// The cache can hold one candle per bucket that both opens and closes
	// inside the window; the newest bucket is usually still forming.
	first := start.Truncate(period)
	if first.Before(start) {
		first = first.Add(period)
	}
	want := int(end.Sub(first) / period)
	if want < 1 {
		want = 1
	}

	cached, err := s.repo.Select(ctx, s.cfg.Pair, periodSeconds, start, end)
	if err != nil {
		s.logger.Error(ctx, err, "candle cache read failed, falling back to the venue")
	} else if len(cached) >= want {
		s.logger.Info(ctx, "preload served from cache", map[string]interface{}{"candles": len(cached)})
		return cached, nil
	}

	candles, _, err := s.exchange.GetCandles(ctx, s.cfg.Pair, s.cfg.Interval, start, end)
	if err != nil {
		// A populated cache is better than nothing when the venue is down.
		if len(cached) > 0 {
			s.logger.Error(ctx, err, "venue fetch failed, using partial cache", map[string]interface{}{"candles": len(cached)})
			return cached, nil
		}
		return nil, fmt.Errorf("failed to load candles for %s: %w", s.cfg.Pair.String(), err)
	}

	for _, c := range candles {
		if err := s.repo.Insert(ctx, s.cfg.Pair, c); err != nil {
			s.logger.Warn(ctx, "candle cache write failed", map[string]interface{}{"error": err.Error()})
			break
		}
	}
	s.logger.Info(ctx, "preload fetched from venue", map[string]interface{}{"candles": len(candles)})
	return candles, nil
}

// report logs the realized positions at the end of a run.
func (s *Service) report(ctx context.Context) {
	closed := s.strategy.ClosedPositions()
	s.logger.Info(ctx, "Engine stopped", map[string]interface{}{
		"closedPositions": len(closed),
	})
	last := s.chart.Last()
	for i, p := range closed {
		s.logger.Info(ctx, fmt.Sprintf("position %d", i+1), map[string]interface{}{
			"entry":         p.EntryPrice(),
			"exit":          p.ExitPrice(),
			"profitPercent": (p.ExitPrice() - p.EntryPrice()) * 100 / p.ExitPrice(),
		})
	}
	if open := s.strategy.OpenPosition(); open != nil && last != nil {
		s.logger.Info(ctx, "position still open", map[string]interface{}{
			"entry":  open.EntryPrice(),
			"profit": open.Profit(last),
		})
	}
}
