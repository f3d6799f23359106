package domain

import "fmt"

// ExchangeID identifies a trading venue.
type ExchangeID string

const (
	ExchangeBinance  ExchangeID = "binance"
	ExchangePoloniex ExchangeID = "poloniex"
)

// Mode selects how the engine executes trades.
type Mode string

const (
	ModeBacktest Mode = "backtest"  // replay historical candles, no network
	ModeLiveTest Mode = "live_test" // live data, simulated fills
	ModeLive     Mode = "live"      // live data, real orders
)

// ParseMode validates a configuration string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBacktest, ModeLiveTest, ModeLive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown trading mode %q", s)
}

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	StatusCreated PositionStatus = "created"
	StatusOpen    PositionStatus = "open"
	StatusClosed  PositionStatus = "closed"
)
