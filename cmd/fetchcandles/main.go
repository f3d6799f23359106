// Command fetchcandles downloads a candle range from the configured venue
// into the local SQLite cache, optionally exporting it to CSV. Backtests can
// then run offline against the cache.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"candlebot/config"
	"candlebot/internal/adapters/binance"
	"candlebot/internal/adapters/logger"
	"candlebot/internal/adapters/poloniex"
	"candlebot/internal/adapters/sqlite"
	"candlebot/internal/domain"
	"candlebot/internal/ports"
	"candlebot/internal/utils"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize the venue adapter
	var exchange ports.ExchangeAdapter
	switch cfg.Exchange {
	case domain.ExchangePoloniex:
		exchange, err = poloniex.New(poloniex.Config{Logger: appLogger})
	default:
		exchange, err = binance.New(ctx, binance.Config{Logger: appLogger})
	}
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize exchange adapter: %v", err)
	}

	// 4. Open the candle cache
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open candle cache: %v", err)
	}
	defer repo.Close()

	// The backtest window doubles as the fetch range; default to the last
	// three months.
	start, end := cfg.BacktestStart, cfg.BacktestEnd
	if start.IsZero() || end.IsZero() {
		end = time.Now().UTC()
		start = end.AddDate(0, -3, 0)
	}

	appLogger.Info(ctx, "Fetching candles", map[string]interface{}{
		"pair":     cfg.Pair.String(),
		"interval": string(cfg.Interval),
		"start":    start.Format(time.RFC3339),
		"end":      end.Format(time.RFC3339),
	})

	candles, _, err := exchange.GetCandles(ctx, cfg.Pair, cfg.Interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles")
		log.Fatalf("Error fetching candles: %v", err)
	}
	appLogger.Info(ctx, "Fetched candles", map[string]interface{}{"count": len(candles)})

	inserted := 0
	for _, c := range candles {
		if err := repo.Insert(ctx, cfg.Pair, c); err != nil {
			appLogger.Error(ctx, err, "Error caching candle")
			log.Fatalf("Error caching candle: %v", err)
		}
		inserted++
	}
	appLogger.Info(ctx, "Cached candles", map[string]interface{}{"count": inserted, "db": cfg.DBPath})

	filename := fmt.Sprintf("data/%s%s_%s_%s_to_%s.csv",
		cfg.Pair.Base, cfg.Pair.Quote, cfg.Interval, start.Format("20060102"), end.Format("20060102"))
	if err := utils.WriteCandlesToCSV(candles, cfg.Pair, cfg.Interval, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
