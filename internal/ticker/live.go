package ticker

import (
	"context"
	"fmt"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// PriceSource is the slice of the venue adapter the live ticker polls.
type PriceSource interface {
	GetTicker(ctx context.Context, pair domain.CurrencyPair) (float64, error)
}

// Live polls the venue ticker price, feeds it into an in-progress candle and
// hands the candle to the strategy when the wall clock closes it. The sleep
// between polls happens in one-second increments so a stop request is
// observed within a second.
type Live struct {
	state
	source        PriceSource
	pair          domain.CurrencyPair
	periodSeconds int
	tick          time.Duration
	onTick        TickFunc
	logger        ports.Logger
}

// NewLive creates a live polling driver. tick is the delay between price
// polls.
func NewLive(source PriceSource, pair domain.CurrencyPair, periodSeconds int, tick time.Duration, onTick TickFunc, logger ports.Logger) (*Live, error) {
	if source == nil || onTick == nil || logger == nil {
		return nil, fmt.Errorf("source, onTick and logger are required")
	}
	if periodSeconds <= 0 || tick <= 0 {
		return nil, fmt.Errorf("%w: period and tick must be positive", ports.ErrConfiguration)
	}
	return &Live{
		state:         newState(),
		source:        source,
		pair:          pair,
		periodSeconds: periodSeconds,
		tick:          tick,
		onTick:        onTick,
		logger:        logger,
	}, nil
}

// Start spawns the polling loop.
func (l *Live) Start(ctx context.Context) error {
	if !l.status.CompareAndSwap(0, int32(StatusWorking)) {
		return fmt.Errorf("live ticker already started")
	}
	go l.run(ctx)
	return nil
}

func (l *Live) run(ctx context.Context) {
	defer close(l.doneCh)
	l.logger.Info(ctx, "live ticker started", map[string]interface{}{"pair": l.pair.String(), "periodSeconds": l.periodSeconds})

	var candle *domain.Candle
	for !l.stopped() {
		if l.Status() == StatusPaused {
			if !l.sleep(time.Second) {
				break
			}
			continue
		}

		if candle == nil {
			candle = domain.NewCandle(l.periodSeconds, time.Now())
		}

		price, err := l.source.GetTicker(ctx, l.pair)
		if err != nil {
			// A failed poll skips this iteration; the loop itself survives.
			l.logger.Error(ctx, err, "ticker price fetch failed", map[string]interface{}{"pair": l.pair.String()})
		} else {
			now := time.Now()
			candle.Tick(price, now)
			if candle.IsClosed() {
				l.onTick(ctx, candle)
				candle = domain.NewSeededCandle(l.periodSeconds, now, price)
			}
		}

		if !l.sleep(l.tick) {
			break
		}
	}

	l.logger.Info(ctx, "live ticker stopped", map[string]interface{}{"pair": l.pair.String()})
}

// sleep waits for d in one-second increments, returning false as soon as a
// stop is requested.
func (l *Live) sleep(d time.Duration) bool {
	for d > 0 {
		step := time.Second
		if d < step {
			step = d
		}
		select {
		case <-l.stopCh:
			return false
		case <-time.After(step):
		}
		d -= step
	}
	return true
}
