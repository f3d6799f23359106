// Package indicators holds the technical-indicator math consumed by
// strategies. All functions operate on index-aligned OHLCV arrays extracted
// from the chart; the engine itself never calls them.
package indicators

import "candlebot/internal/domain"

// Series is the index-aligned array view of a candle sequence.
type Series struct {
	Time   []int64 // candle open times, unix seconds
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// FromCandles extracts aligned arrays from closed candles, oldest first.
func FromCandles(candles []*domain.Candle) Series {
	s := Series{
		Time:   make([]int64, len(candles)),
		Open:   make([]float64, len(candles)),
		High:   make([]float64, len(candles)),
		Low:    make([]float64, len(candles)),
		Close:  make([]float64, len(candles)),
		Volume: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Time[i] = c.OpenTime.Unix()
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.Volume
	}
	return s
}

// Len returns the number of aligned entries.
func (s Series) Len() int {
	return len(s.Close)
}
