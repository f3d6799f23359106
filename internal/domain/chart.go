package domain

// Chart is an append-only buffer of closed candles for one pair and period,
// owned by a single strategy/driver. Open times are strictly increasing; when
// a limit is set the oldest candles are evicted first. A limit of zero means
// unbounded.
//
// Chart is not synchronized: during normal operation it is touched only from
// the driver goroutine, and operator commands are serialized by the strategy.
type Chart struct {
	Pair          CurrencyPair
	PeriodSeconds int

	limit int
	data  []*Candle
}

// NewChart creates a chart buffer. limit <= 0 disables eviction.
func NewChart(pair CurrencyPair, periodSeconds, limit int) *Chart {
	return &Chart{Pair: pair, PeriodSeconds: periodSeconds, limit: limit}
}

// Add appends a closed candle. Candles that are not closed or would break the
// open-time ordering are rejected.
func (ch *Chart) Add(c *Candle) bool {
	if c == nil || !c.IsClosed() {
		return false
	}
	if last := ch.Last(); last != nil && !c.OpenTime.After(last.OpenTime) {
		return false
	}
	ch.data = append(ch.data, c)
	ch.applyLimit()
	return true
}

// Reset replaces the buffer contents, typically with preloaded history.
func (ch *Chart) Reset(candles []*Candle) {
	ch.data = append(ch.data[:0:0], candles...)
	ch.applyLimit()
}

func (ch *Chart) applyLimit() {
	if ch.limit > 0 && len(ch.data) > ch.limit {
		ch.data = ch.data[len(ch.data)-ch.limit:]
	}
}

// Candles returns the buffered candles, oldest first. Callers must treat the
// returned slice as read-only.
func (ch *Chart) Candles() []*Candle {
	return ch.data
}

// Last returns the most recent candle, or nil when empty.
func (ch *Chart) Last() *Candle {
	if len(ch.data) == 0 {
		return nil
	}
	return ch.data[len(ch.data)-1]
}

// Len returns the number of buffered candles.
func (ch *Chart) Len() int {
	return len(ch.data)
}
