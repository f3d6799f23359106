// Package ticker contains the drivers that feed candles into a strategy:
// live polling, historical backtest replay, and WebSocket streaming. Exactly
// one driver is active per engine run; the driver goroutine is the only
// writer of the chart and position state during normal operation.
package ticker

import (
	"context"
	"sync/atomic"

	"candlebot/internal/domain"
)

// Status is the driver lifecycle state. A driver only ever moves to
// StatusStopped in response to Stop.
type Status int32

const (
	StatusWorking Status = iota + 1
	StatusPaused
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusWorking:
		return "WORKING"
	case StatusPaused:
		return "PAUSED"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// TickFunc receives each closed candle (or, for the realtime hook, each
// intra-candle update).
type TickFunc func(ctx context.Context, candle *domain.Candle)

// Driver is a cancellable unit of concurrent execution feeding a strategy.
// Start spawns the driver goroutine; Stop signals termination and is safe to
// call once — callers wait on Done for a clean join. Status transitions only
// by explicit caller action.
type Driver interface {
	Start(ctx context.Context) error
	Stop()
	Pause()
	Resume()
	Status() Status
	Done() <-chan struct{}
}

// state is the shared status/stop machinery embedded by every driver.
type state struct {
	status atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}
}

func newState() state {
	return state{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (s *state) Status() Status        { return Status(s.status.Load()) }
func (s *state) Done() <-chan struct{} { return s.doneCh }

func (s *state) Pause() {
	s.status.CompareAndSwap(int32(StatusWorking), int32(StatusPaused))
}

func (s *state) Resume() {
	s.status.CompareAndSwap(int32(StatusPaused), int32(StatusWorking))
}

// Stop is idempotent: the first call closes the stop channel, later calls
// are no-ops.
func (s *state) Stop() {
	if s.status.Swap(int32(StatusStopped)) != int32(StatusStopped) {
		close(s.stopCh)
	}
}

func (s *state) stopped() bool {
	return s.Status() == StatusStopped
}
