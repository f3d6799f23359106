package indicators

import (
	"fmt"
	"math"
)

// ATR computes the Average True Range over the series with Wilder's
// smoothing, a volatility measure strategies use to size stops.
func ATR(s Series, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if s.Len() <= period {
		return 0, fmt.Errorf("not enough data (%d) to calculate ATR for period %d", s.Len(), period)
	}

	trueRanges := make([]float64, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		highLow := s.High[i] - s.Low[i]
		highClose := math.Abs(s.High[i] - s.Close[i-1])
		lowClose := math.Abs(s.Low[i] - s.Close[i-1])
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highClose, lowClose)))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, nil
}
