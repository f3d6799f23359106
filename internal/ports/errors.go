package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors. Adapters wrap underlying infrastructure
// errors with these so calling code never branches on venue-specific shapes.
var (
	// ErrUnsupportedInterval is returned at construction/query time when the
	// venue has no mapping for the requested candle interval.
	ErrUnsupportedInterval = errors.New("interval not supported by exchange")

	// ErrConfiguration marks invalid engine configuration, fatal before start.
	ErrConfiguration = errors.New("invalid or missing configuration")

	ErrConnectionFailed = errors.New("failed to connect to the exchange")
	ErrOrderNotFound    = errors.New("order not found on the exchange")
)

// QueryError is a venue HTTP/auth failure: a non-2xx response, a venue error
// payload, or a transport error. Order attempts that hit a QueryError are
// abandoned for the current tick and retried on the next.
type QueryError struct {
	StatusCode int
	Code       int64  // venue-specific error code, 0 when absent
	Message    string // venue-supplied message
	Err        error  // underlying transport error, may be nil
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange query failed: %v", e.Err)
	}
	return fmt.Sprintf("exchange query failed: %d [%d] %s", e.StatusCode, e.Code, e.Message)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsQueryError reports whether err carries a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// FilterError is a local violation of a venue order filter, detected before
// any network call. The offending field and its post-rounding value are
// carried for reporting; the same value is never retried.
type FilterError struct {
	Symbol string
	Field  string // "price" or "quantity"
	Value  float64
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("order %s %v violates %s filters", e.Field, e.Value, e.Symbol)
}

// IsFilterError reports whether err carries a FilterError.
func IsFilterError(err error) bool {
	var fe *FilterError
	return errors.As(err, &fe)
}
