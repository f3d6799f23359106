package ports

import (
	"context"
	"time"

	"candlebot/internal/domain"
)

// CandleRepository is the local historical-candle cache, keyed by
// pair+period+open time. The engine treats a miss as "fetch from the venue
// and insert".
type CandleRepository interface {
	// Select retrieves cached candles for the pair and period whose open time
	// falls in [start, end], ordered by open time ascending.
	Select(ctx context.Context, pair domain.CurrencyPair, periodSeconds int, start, end time.Time) ([]*domain.Candle, error)

	// Insert stores a closed candle. Inserting an already-cached candle is a
	// no-op.
	Insert(ctx context.Context, pair domain.CurrencyPair, candle *domain.Candle) error
}
