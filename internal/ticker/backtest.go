package ticker

import (
	"context"
	"fmt"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// Backtest replays a pre-fetched, ordered candle sequence into the strategy,
// pacing deliveries with a configurable (possibly sub-second) delay. Pause
// blocks between candles without consuming the sequence; a stop takes effect
// before the next delivery.
type Backtest struct {
	state
	candles []*domain.Candle
	delay   time.Duration
	onTick  TickFunc
	logger  ports.Logger
}

// NewBacktest creates a replay driver over the given candles.
func NewBacktest(candles []*domain.Candle, delay time.Duration, onTick TickFunc, logger ports.Logger) (*Backtest, error) {
	if onTick == nil || logger == nil {
		return nil, fmt.Errorf("onTick and logger are required")
	}
	if delay < 0 {
		return nil, fmt.Errorf("%w: delay cannot be negative", ports.ErrConfiguration)
	}
	return &Backtest{
		state:   newState(),
		candles: candles,
		delay:   delay,
		onTick:  onTick,
		logger:  logger,
	}, nil
}

// Start spawns the replay loop.
func (b *Backtest) Start(ctx context.Context) error {
	if !b.status.CompareAndSwap(0, int32(StatusWorking)) {
		return fmt.Errorf("backtest ticker already started")
	}
	go b.run(ctx)
	return nil
}

func (b *Backtest) run(ctx context.Context) {
	defer close(b.doneCh)
	b.logger.Info(ctx, "backtest ticker started", map[string]interface{}{"candles": len(b.candles)})

	for _, candle := range b.candles {
		for b.Status() == StatusPaused {
			select {
			case <-b.stopCh:
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
		if b.stopped() {
			return
		}

		b.onTick(ctx, candle)

		if !b.wait() {
			return
		}
	}

	b.logger.Info(ctx, "backtest ticker finished")
}

func (b *Backtest) wait() bool {
	if b.delay == 0 {
		return !b.stopped()
	}
	select {
	case <-b.stopCh:
		return false
	case <-time.After(b.delay):
		return true
	}
}
