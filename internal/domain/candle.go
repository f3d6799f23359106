package domain

import "time"

// KlineUpdate carries one streamed kline message from a venue. The venue is
// authoritative for every field; IsFinal marks the bar as closed.
type KlineUpdate struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool
}

// Candle is one fixed-width OHLCV bucket. It is mutated by exactly one ticker
// driver until it closes, after which it is read-only history.
//
// Two update paths exist: Tick for venues that only expose a last price
// (closure decided by wall clock) and ApplyKline for venues that stream
// authoritative bar data (closure decided by the venue's IsFinal flag).
type Candle struct {
	PeriodSeconds int
	OpenTime      time.Time
	CloseTime     time.Time // zero until closed
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	Average       float64 // (High+Low+Close)/3, set once at closure
	Current       float64 // last observed price

	hasPrice bool
	closed   bool
}

// NewCandle starts an empty candle whose open time is aligned to the period
// bucket containing now.
func NewCandle(periodSeconds int, now time.Time) *Candle {
	ts := now.UTC().Unix()
	ts -= ts % int64(periodSeconds)
	return &Candle{
		PeriodSeconds: periodSeconds,
		OpenTime:      time.Unix(ts, 0).UTC(),
	}
}

// NewSeededCandle starts a candle pre-loaded with a known price, used by the
// live ticker to carry the last trade price of the previous bar into the next.
func NewSeededCandle(periodSeconds int, now time.Time, price float64) *Candle {
	c := NewCandle(periodSeconds, now)
	c.Tick(price, now)
	return c
}

// NewClosedCandle builds an already-closed candle from historical venue data.
func NewClosedCandle(periodSeconds int, openTime time.Time, open, high, low, closePrice, volume float64) *Candle {
	return &Candle{
		PeriodSeconds: periodSeconds,
		OpenTime:      openTime.UTC(),
		CloseTime:     openTime.UTC().Add(time.Duration(periodSeconds) * time.Second),
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePrice,
		Volume:        volume,
		Average:       (high + low + closePrice) / 3,
		Current:       closePrice,
		hasPrice:      true,
		closed:        true,
	}
}

// Tick feeds one observed price into the candle. The first price latches Open;
// High and Low only ever widen. Once the wall clock crosses the bucket
// boundary the candle seals itself: Close and Average are set exactly once.
// Ticks after closure are ignored.
func (c *Candle) Tick(price float64, now time.Time) {
	if c.closed {
		return
	}

	c.Current = price
	if !c.hasPrice {
		c.Open = price
		c.High = price
		c.Low = price
		c.hasPrice = true
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}

	boundary := c.OpenTime.Add(time.Duration(c.PeriodSeconds) * time.Second)
	if !now.UTC().Before(boundary) {
		c.Close = c.Current
		c.CloseTime = boundary
		c.Average = (c.High + c.Low + c.Close) / 3
		c.closed = true
	}
}

// ApplyKline overwrites the candle with venue-authoritative bar data. The
// venue's boundaries are trusted over the local clock to avoid drift. A final
// update seals the candle; updates after closure are ignored.
func (c *Candle) ApplyKline(u KlineUpdate) {
	if c.closed {
		return
	}

	if !u.OpenTime.IsZero() {
		c.OpenTime = u.OpenTime.UTC()
	}
	c.Open = u.Open
	c.High = u.High
	c.Low = u.Low
	c.Current = u.Close
	c.Volume = u.Volume
	c.hasPrice = true

	if u.IsFinal {
		c.Close = u.Close
		c.CloseTime = u.CloseTime.UTC()
		c.Average = (c.High + c.Low + c.Close) / 3
		c.closed = true
	}
}

// IsClosed reports whether the candle has sealed. It never reverts to false.
func (c *Candle) IsClosed() bool {
	return c.closed
}

// Typical is the candle's typical price: the sealed Average once closed,
// otherwise a provisional (High+Low+Current)/3 over the bar so far. Risk
// checks that run on intra-candle updates use this instead of Average, which
// is only set at closure. Returns 0 before the first price.
func (c *Candle) Typical() float64 {
	if c.closed {
		return c.Average
	}
	if !c.hasPrice {
		return 0
	}
	return (c.High + c.Low + c.Current) / 3
}
