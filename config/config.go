package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"candlebot/internal/adapters/logger"
	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// Config holds all application configuration.
type Config struct {
	// Market selection
	Pair     domain.CurrencyPair
	Interval domain.Interval
	Exchange domain.ExchangeID

	// Trading parameters
	Mode            domain.Mode
	Budget          float64 // quote-currency amount committed per position
	StopLossPercent float64 // percent of entry price, 0 disables the stop

	// Strategy
	Strategy     string
	StrategyArgs map[string]string // free-form name=value pairs

	// Ticker drivers
	Ticker       string        // "websocket" or "poll", ignored in backtest mode
	Preload      int           // warm-up candles fetched before the driver starts
	Tick         time.Duration // polling interval of the live ticker
	BacktestTick time.Duration // delay between backtest deliveries, may be 0

	// Backtest window
	BacktestStart time.Time
	BacktestEnd   time.Time

	// Venue credentials
	BinanceAPIKey     string
	BinanceSecretKey  string
	PoloniexAPIKey    string
	PoloniexSecretKey string

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// Ticker driver selection values.
const (
	TickerWebsocket = "websocket"
	TickerPoll      = "poll"
)

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Market selection
	cfg.Pair, err = domain.ParsePair(getEnv("PAIR", "ETH,USDT"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAIR: %v", err))
	}

	cfg.Interval, err = domain.ParseInterval(getEnv("PERIOD", "5m"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PERIOD: %v", err))
	}

	switch exch := domain.ExchangeID(getEnv("EXCHANGE", string(domain.ExchangeBinance))); exch {
	case domain.ExchangeBinance, domain.ExchangePoloniex:
		cfg.Exchange = exch
	default:
		errs = append(errs, fmt.Sprintf("unknown EXCHANGE %q", exch))
	}

	// Trading parameters
	cfg.Mode, err = domain.ParseMode(getEnv("MODE", string(domain.ModeLiveTest)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MODE: %v", err))
	}

	cfg.Budget, err = getEnvAsFloatRequired("BUDGET", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BUDGET: %v", err))
	} else if cfg.Budget < 0 {
		errs = append(errs, "BUDGET cannot be negative")
	}
	if cfg.Mode == domain.ModeLive && cfg.Budget <= 0 {
		errs = append(errs, "BUDGET must be positive in live mode")
	}

	cfg.StopLossPercent, err = getEnvAsFloatRequired("STOP_LOSS_PERCENT", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PERCENT: %v", err))
	} else if cfg.StopLossPercent < 0 || cfg.StopLossPercent > 100 {
		errs = append(errs, "STOP_LOSS_PERCENT must be between 0 and 100")
	}

	// Strategy
	cfg.Strategy = getEnv("STRATEGY", "movingaverage")
	cfg.StrategyArgs, err = parseArgs(getEnv("STRATEGY_ARGS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STRATEGY_ARGS: %v", err))
	}

	// Ticker drivers
	cfg.Ticker = getEnv("TICKER", TickerWebsocket)
	if cfg.Ticker != TickerWebsocket && cfg.Ticker != TickerPoll {
		errs = append(errs, fmt.Sprintf("TICKER must be %q or %q", TickerWebsocket, TickerPoll))
	}

	cfg.Preload = getEnvAsInt("PRELOAD", 300)
	if cfg.Preload < 0 {
		errs = append(errs, "PRELOAD cannot be negative")
	}

	cfg.Tick, err = getEnvAsDuration("TICK", 10*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TICK: %v", err))
	} else if cfg.Tick <= 0 {
		errs = append(errs, "TICK must be positive")
	}

	cfg.BacktestTick, err = getEnvAsDuration("BACKTEST_TICK", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_TICK: %v", err))
	} else if cfg.BacktestTick < 0 {
		errs = append(errs, "BACKTEST_TICK cannot be negative")
	}

	// Backtest window, required only in backtest mode
	cfg.BacktestStart, err = getEnvAsTime("BACKTEST_START")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_START: %v", err))
	}
	cfg.BacktestEnd, err = getEnvAsTime("BACKTEST_END")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_END: %v", err))
	}
	if cfg.Mode == domain.ModeBacktest {
		if cfg.BacktestStart.IsZero() || cfg.BacktestEnd.IsZero() {
			errs = append(errs, "BACKTEST_START and BACKTEST_END must be set in backtest mode")
		} else if !cfg.BacktestStart.Before(cfg.BacktestEnd) {
			errs = append(errs, "BACKTEST_START must be before BACKTEST_END")
		}
	}

	// Venue credentials, required only for live trading on the venue
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.PoloniexAPIKey = getEnv("POLONIEX_API_KEY", "")
	cfg.PoloniexSecretKey = getEnv("POLONIEX_API_SECRET", "")

	if cfg.Mode == domain.ModeLive {
		switch cfg.Exchange {
		case domain.ExchangeBinance:
			if cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "" {
				errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set for live trading")
			}
		case domain.ExchangePoloniex:
			if cfg.PoloniexAPIKey == "" || cfg.PoloniexSecretKey == "" {
				errs = append(errs, "POLONIEX_API_KEY and POLONIEX_API_SECRET must be set for live trading")
			}
		}
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/candles.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseArgs splits "key=value,key=value" into a map.
func parseArgs(s string) (map[string]string, error) {
	args := make(map[string]string)
	if s == "" {
		return args, nil
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("malformed entry %q, want key=value", part)
		}
		args[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return args, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsTime accepts RFC3339 or a bare date (interpreted as midnight UTC).
func getEnvAsTime(key string) (time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, valueStr); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time '%s' for key %s, want RFC3339 or YYYY-MM-DD", valueStr, key)
	}
	return t.UTC(), nil
}
