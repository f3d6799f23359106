// Package movingaverage is the bundled mean-reversion strategy: it opens a
// long position when the candle average drops below the simple moving average
// of recent candle averages and closes it when the average climbs back above.
// An RSI filter keeps it from buying into an overbought market, and a trailing
// lock-in is tightened on every profitable candle. The entry stop is a fixed
// percent of the entry price, or sized from the ATR when atrStopFactor is set.
package movingaverage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
	"candlebot/internal/position"
	"candlebot/internal/strategy"
	"candlebot/internal/strategy/indicators"
)

const (
	defaultPeriod           = 15
	defaultRSIPeriod        = 14
	defaultRSICeiling       = 70.0
	defaultStopLossPercent  = 5.0
	defaultPropLimitPercent = 1.0
	defaultATRPeriod        = 14
)

func init() {
	strategy.Register("movingaverage", New)
}

// Strategy implements ports.Strategy. All hooks and operator commands take
// the same mutex so a manual close cannot race an automatic stop-loss close
// issued from the driver goroutine.
type Strategy struct {
	mu sync.Mutex

	chart    *domain.Chart
	exchange ports.ExchangeAdapter
	mode     domain.Mode
	budget   float64
	logger   ports.Logger

	period           int
	rsiPeriod        int
	rsiCeiling       float64
	stopLossPercent  float64
	propLimitPercent float64
	atrPeriod        int
	atrStopFactor    float64

	preload int
	seen    int

	open   *position.Position
	closed []*position.Position
}

// New builds the strategy from registry deps and free-form args. Recognized
// args: period, rsiPeriod, rsiCeiling, propLimitPercent, atrPeriod,
// atrStopFactor.
func New(deps strategy.Deps, args map[string]string) (ports.Strategy, error) {
	s := &Strategy{
		chart:            deps.Chart,
		exchange:         deps.Exchange,
		mode:             deps.Mode,
		budget:           deps.Budget,
		logger:           deps.Logger,
		period:           defaultPeriod,
		rsiPeriod:        defaultRSIPeriod,
		rsiCeiling:       defaultRSICeiling,
		stopLossPercent:  deps.StopLossPercent,
		propLimitPercent: defaultPropLimitPercent,
		atrPeriod:        defaultATRPeriod,
	}
	if s.stopLossPercent == 0 {
		s.stopLossPercent = defaultStopLossPercent
	}
	if err := s.applyArgs(args); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Strategy) applyArgs(args map[string]string) error {
	for key, raw := range args {
		switch key {
		case "period":
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return fmt.Errorf("%w: movingaverage period %q must be a positive integer", ports.ErrConfiguration, raw)
			}
			s.period = v
		case "rsiPeriod":
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return fmt.Errorf("%w: movingaverage rsiPeriod %q must be a positive integer", ports.ErrConfiguration, raw)
			}
			s.rsiPeriod = v
		case "rsiCeiling":
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v <= 0 || v > 100 {
				return fmt.Errorf("%w: movingaverage rsiCeiling %q must be in (0,100]", ports.ErrConfiguration, raw)
			}
			s.rsiCeiling = v
		case "propLimitPercent":
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 || v > 100 {
				return fmt.Errorf("%w: movingaverage propLimitPercent %q must be in [0,100]", ports.ErrConfiguration, raw)
			}
			s.propLimitPercent = v
		case "atrPeriod":
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return fmt.Errorf("%w: movingaverage atrPeriod %q must be a positive integer", ports.ErrConfiguration, raw)
			}
			s.atrPeriod = v
		case "atrStopFactor":
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				return fmt.Errorf("%w: movingaverage atrStopFactor %q must be non-negative", ports.ErrConfiguration, raw)
			}
			s.atrStopFactor = v
		default:
			return fmt.Errorf("%w: movingaverage does not recognize arg %q", ports.ErrConfiguration, key)
		}
	}
	return nil
}

// OnPreload seeds the chart with history. The first preload candles fed to
// OnTick afterwards only warm the indicators and never generate signals.
func (s *Strategy) OnPreload(ctx context.Context, candles []*domain.Candle, preload int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chart.Reset(candles)
	s.preload = preload
	s.seen = 0
	s.logger.Info(ctx, "strategy preloaded", map[string]interface{}{
		"strategy": "movingaverage",
		"candles":  s.chart.Len(),
		"warmup":   preload,
	})
}

// OnTick handles one closed candle: risk management first, then signals.
func (s *Strategy) OnTick(ctx context.Context, candle *domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chart.Add(candle)
	s.seen++

	s.manageOpen(ctx, candle)

	if s.seen <= s.preload {
		return
	}
	s.evaluate(ctx, candle)
}

// OnRealtimeTick runs the exit triggers on every intra-candle update so a
// stop-loss does not have to wait for bar closure.
func (s *Strategy) OnRealtimeTick(ctx context.Context, candle *domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manageOpen(ctx, candle)
}

// manageOpen runs the position's exit triggers and tightens the trailing
// lock-in while the candle is profitable. Callers hold s.mu.
func (s *Strategy) manageOpen(ctx context.Context, candle *domain.Candle) {
	if s.open == nil {
		return
	}
	s.open.Tick(ctx, candle)
	if s.open.Status() == domain.StatusClosed {
		s.retire(ctx, candle)
		return
	}
	if s.propLimitPercent > 0 && s.open.Profit(candle) > 0 {
		s.open.SetPropLimit(ctx, candle, s.propLimitPercent)
	}
}

// evaluate applies the entry/exit signal to the current candle. Callers hold
// s.mu.
func (s *Strategy) evaluate(ctx context.Context, candle *domain.Candle) {
	series := indicators.FromCandles(s.chart.Candles())
	averages := make([]float64, series.Len())
	for i := range averages {
		averages[i] = (series.High[i] + series.Low[i] + series.Close[i]) / 3
	}

	sma, err := indicators.SMA(averages, s.period)
	if err != nil {
		return // not enough history yet
	}

	switch {
	case s.open == nil && candle.Average < sma:
		if rsi, err := indicators.RSI(averages, s.rsiPeriod); err == nil && rsi >= s.rsiCeiling {
			s.logger.Debug(ctx, "entry skipped, RSI overbought", map[string]interface{}{"rsi": rsi, "ceiling": s.rsiCeiling})
			return
		}
		s.enter(ctx, candle, s.sizeStop(series, candle))

	case s.open != nil && candle.Average > sma:
		if err := s.open.Close(ctx, candle); err != nil {
			s.logger.Error(ctx, err, "signal close failed, position stays open")
			return
		}
		s.retire(ctx, candle)
	}
}

// sizeStop returns the stop-loss percent for a new entry: the configured
// fixed percent, or atrStopFactor times the ATR expressed as a percent of the
// entry candle when the factor is set and enough history exists.
func (s *Strategy) sizeStop(series indicators.Series, candle *domain.Candle) float64 {
	if s.atrStopFactor <= 0 || candle.Average <= 0 {
		return s.stopLossPercent
	}
	atr, err := indicators.ATR(series, s.atrPeriod)
	if err != nil {
		return s.stopLossPercent
	}
	pct := atr * s.atrStopFactor * 100 / candle.Average
	if pct <= 0 || pct >= 100 {
		return s.stopLossPercent
	}
	return pct
}

// enter attempts to open a position. A failed open attempt is logged and
// discarded, leaving the strategy flat for the next candle. Callers hold s.mu.
func (s *Strategy) enter(ctx context.Context, candle *domain.Candle, stopLossPercent float64) error {
	p, err := position.New(s.chart.Pair, s.budget, s.mode, s.exchange, s.logger, stopLossPercent)
	if err != nil {
		s.logger.Error(ctx, err, "position rejected")
		return err
	}
	if err := p.Open(ctx, candle); err != nil {
		s.logger.Error(ctx, err, "open attempt failed")
		return err
	}
	s.open = p
	s.logger.Info(ctx, "position opened", map[string]interface{}{
		"pair":     s.chart.Pair.String(),
		"entry":    p.EntryPrice(),
		"stopLoss": p.StopLoss(),
	})
	return nil
}

// retire moves the open position into the closed history. Callers hold s.mu.
func (s *Strategy) retire(ctx context.Context, candle *domain.Candle) {
	p := s.open
	s.open = nil
	s.closed = append(s.closed, p)
	s.logger.Info(ctx, "position closed", map[string]interface{}{
		"pair":   s.chart.Pair.String(),
		"entry":  p.EntryPrice(),
		"exit":   p.ExitPrice(),
		"profit": p.Profit(candle),
	})
}

// OpenTrade opens a position at the latest chart candle on operator request.
func (s *Strategy) OpenTrade(ctx context.Context, stopLossPercent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil {
		return fmt.Errorf("a position is already open at %f", s.open.EntryPrice())
	}
	candle := s.chart.Last()
	if candle == nil {
		return fmt.Errorf("no candle history to open a position against")
	}
	if stopLossPercent == 0 {
		stopLossPercent = s.stopLossPercent
	}
	return s.enter(ctx, candle, stopLossPercent)
}

// CloseTrade closes the open position at the latest chart candle.
func (s *Strategy) CloseTrade(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return fmt.Errorf("no open position to close")
	}
	candle := s.chart.Last()
	if candle == nil {
		return fmt.Errorf("no candle history to close the position against")
	}
	if err := s.open.Close(ctx, candle); err != nil {
		return err
	}
	s.retire(ctx, candle)
	return nil
}

// OpenPosition returns the open position view, or nil when flat.
func (s *Strategy) OpenPosition() ports.OpenPositionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return nil
	}
	return s.open
}

// ClosedPositions returns the realized history, oldest first.
func (s *Strategy) ClosedPositions() []ports.ClosedPositionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]ports.ClosedPositionView, len(s.closed))
	for i, p := range s.closed {
		views[i] = p
	}
	return views
}
