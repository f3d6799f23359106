package ticker

import (
	"context"
	"fmt"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// WebSocket consumes a venue kline stream. Every inbound message updates the
// in-progress candle from venue-authoritative fields and invokes the
// realtime hook for intra-candle risk checks; the full tick callback fires
// only when the venue marks the bar closed. Reconnection is the streamer's
// concern and continues until Stop.
type WebSocket struct {
	state
	streamer       ports.KlineStreamer
	pair           domain.CurrencyPair
	interval       domain.Interval
	candle         *domain.Candle // in-progress bar, may be seeded from preload
	onTick         TickFunc
	onRealtimeTick TickFunc
	logger         ports.Logger
}

// NewWebSocket creates a streaming driver. seed, when non-nil, is the venue's
// current in-progress candle from the preload fetch.
func NewWebSocket(streamer ports.KlineStreamer, pair domain.CurrencyPair, interval domain.Interval, seed *domain.Candle,
	onTick, onRealtimeTick TickFunc, logger ports.Logger) (*WebSocket, error) {
	if streamer == nil || onTick == nil || onRealtimeTick == nil || logger == nil {
		return nil, fmt.Errorf("streamer, callbacks and logger are required")
	}
	return &WebSocket{
		state:          newState(),
		streamer:       streamer,
		pair:           pair,
		interval:       interval,
		candle:         seed,
		onTick:         onTick,
		onRealtimeTick: onRealtimeTick,
		logger:         logger,
	}, nil
}

// Start opens the stream and spawns the supervisor goroutine.
func (w *WebSocket) Start(ctx context.Context) error {
	if !w.status.CompareAndSwap(0, int32(StatusWorking)) {
		return fmt.Errorf("websocket ticker already started")
	}

	streamDone, streamStop, err := w.streamer.StreamKlines(ctx, w.pair, w.interval,
		func(u domain.KlineUpdate) { w.handle(ctx, u) },
		func(err error) {
			w.logger.Warn(ctx, "kline stream error", map[string]interface{}{"error": err.Error()})
		},
	)
	if err != nil {
		w.status.Store(int32(StatusStopped))
		return err
	}

	go func() {
		defer close(w.doneCh)
		select {
		case <-w.stopCh:
			close(streamStop)
			<-streamDone
		case <-streamDone:
			// Stream gave up on its own; reflect that only if the caller
			// already asked us to stop, otherwise keep waiting for Stop.
			<-w.stopCh
		}
		w.logger.Info(ctx, "websocket ticker stopped", map[string]interface{}{"pair": w.pair.String()})
	}()
	return nil
}

// handle runs on the stream goroutine, once per inbound message.
func (w *WebSocket) handle(ctx context.Context, u domain.KlineUpdate) {
	if w.Status() != StatusWorking {
		return
	}

	if w.candle == nil {
		w.candle = &domain.Candle{PeriodSeconds: w.interval.Seconds()}
	}
	w.candle.ApplyKline(u)

	if w.candle.IsClosed() {
		w.onTick(ctx, w.candle)
		w.candle = nil
		return
	}
	w.onRealtimeTick(ctx, w.candle)
}
