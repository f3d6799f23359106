package domain

import "fmt"

// Interval is the candle bucket width. Each venue adapter maps it onto the
// venue's own representation and rejects intervals the venue cannot serve.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
)

var intervalSeconds = map[Interval]int{
	Interval1m:  60,
	Interval3m:  180,
	Interval5m:  300,
	Interval15m: 900,
	Interval30m: 1800,
	Interval1h:  3600,
	Interval2h:  7200,
	Interval4h:  14400,
	Interval6h:  21600,
	Interval8h:  28800,
	Interval12h: 43200,
	Interval1d:  86400,
}

// Seconds returns the bucket width in seconds.
func (i Interval) Seconds() int {
	return intervalSeconds[i]
}

// ParseInterval validates a configuration string such as "5m" or "1d".
func ParseInterval(s string) (Interval, error) {
	i := Interval(s)
	if _, ok := intervalSeconds[i]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return i, nil
}
