package ports

import (
	"context"
	"time"

	"candlebot/internal/domain"
)

// ExchangeAdapter normalizes one trading venue behind a single contract:
// symbol formatting, interval mapping, request signing, order filters and
// error translation are all the implementation's responsibility. Adapters hold
// no mutable state beyond their credentials and a read-only exchange-metadata
// snapshot fetched at construction.
type ExchangeAdapter interface {
	// ID identifies the venue.
	ID() domain.ExchangeID

	// GetTicker retrieves the last traded price for the pair.
	GetTicker(ctx context.Context, pair domain.CurrencyPair) (float64, error)

	// GetCandles fetches closed candles in [start, end) plus the venue's
	// current in-progress candle when it reports one (nil otherwise).
	GetCandles(ctx context.Context, pair domain.CurrencyPair, interval domain.Interval, start, end time.Time) ([]*domain.Candle, *domain.Candle, error)

	// PlaceLimitOrder submits a limit order. Price and quantity are snapped to
	// the venue's filters first; a post-rounding violation returns a
	// FilterError without any network call.
	PlaceLimitOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, price, quantity float64, tif domain.TimeInForce) (*domain.Order, error)

	// PlaceMarketOrder submits a market order, subject to quantity filters.
	PlaceMarketOrder(ctx context.Context, pair domain.CurrencyPair, side domain.OrderSide, quantity float64) (*domain.Order, error)

	// CancelOrder cancels an open order by its venue ID.
	CancelOrder(ctx context.Context, pair domain.CurrencyPair, orderID string) error
}

// KlineStreamer is implemented by venues that push authoritative kline bars
// over a persistent connection. The handler runs once per inbound message;
// the stream reconnects on failure until stopCh is closed, after which doneCh
// is closed.
type KlineStreamer interface {
	StreamKlines(ctx context.Context, pair domain.CurrencyPair, interval domain.Interval,
		handler func(domain.KlineUpdate), errHandler func(error)) (doneCh <-chan struct{}, stopCh chan<- struct{}, err error)
}
