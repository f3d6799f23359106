package domain

import (
	"fmt"
	"strings"
)

// CurrencyPair is an ordered (base, quote) pair. It is an immutable value;
// venue-specific string formatting belongs to the exchange adapters.
type CurrencyPair struct {
	Base  string // asset being bought/sold, e.g. "BTC"
	Quote string // asset the budget is held in, e.g. "USDT"
}

// ParsePair accepts "BTC,USDT" or "BTC/USDT".
func ParsePair(s string) (CurrencyPair, error) {
	sep := ","
	if strings.Contains(s, "/") {
		sep = "/"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q", s)
	}
	return CurrencyPair{
		Base:  strings.ToUpper(strings.TrimSpace(parts[0])),
		Quote: strings.ToUpper(strings.TrimSpace(parts[1])),
	}, nil
}

func (p CurrencyPair) String() string {
	return p.Base + "/" + p.Quote
}
