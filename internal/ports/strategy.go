package ports

import (
	"context"

	"candlebot/internal/domain"
)

// Strategy is the pluggable decision logic driven by the ticker loop. The
// engine calls these hooks and never inspects strategy internals.
//
// Implementations own at most one open position at a time and must serialize
// OnTick/OnRealtimeTick against the operator-issued OpenTrade/CloseTrade so a
// manual close cannot race an automatic stop-loss close.
type Strategy interface {
	// OnPreload seeds the strategy's chart with historical candles before the
	// ticker starts. preload is the number of warm-up candles that must not
	// generate signals.
	OnPreload(ctx context.Context, candles []*domain.Candle, preload int)

	// OnTick is invoked once per closed candle.
	OnTick(ctx context.Context, candle *domain.Candle)

	// OnRealtimeTick is invoked on every intra-candle update in streaming
	// mode, for risk checks that cannot wait for bar closure.
	OnRealtimeTick(ctx context.Context, candle *domain.Candle)

	// OpenTrade opens a position at the current candle on operator request.
	OpenTrade(ctx context.Context, stopLossPercent float64) error

	// CloseTrade closes the open position at the current candle, if any.
	CloseTrade(ctx context.Context) error

	// OpenPosition returns the currently open position, nil when flat.
	OpenPosition() OpenPositionView

	// ClosedPositions returns the realized position history, oldest first.
	ClosedPositions() []ClosedPositionView
}

// OpenPositionView is the read-only surface of an open position exposed to
// operators and reporting.
type OpenPositionView interface {
	EntryPrice() float64
	Profit(candle *domain.Candle) float64
}

// ClosedPositionView adds realized-exit data for closed positions.
type ClosedPositionView interface {
	OpenPositionView
	ExitPrice() float64
}
