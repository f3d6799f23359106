package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"candlebot/config"
	"candlebot/internal/adapters/binance"
	"candlebot/internal/adapters/logger"
	"candlebot/internal/adapters/poloniex"
	"candlebot/internal/adapters/sqlite"
	"candlebot/internal/app"
	"candlebot/internal/domain"
	"candlebot/internal/ports"
	_ "candlebot/internal/strategy/movingaverage" // register the bundled strategy
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
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize the candle cache
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize candle cache")
		log.Fatalf("FATAL: Failed to initialize candle cache: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing candle cache")
		}
	}()

	// 4. Initialize the venue adapter
	exchange, err := buildExchange(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange adapter")
		log.Fatalf("FATAL: Failed to initialize exchange adapter: %v", err)
	}
	appLogger.Info(ctx, "Exchange adapter initialized", map[string]interface{}{"venue": string(exchange.ID())})

	// 5. Initialize the application service (builds the strategy by name)
	service, err := app.NewService(cfg, appLogger, exchange, repo)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize service")
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}

	// 6. Run until a signal arrives or the backtest sequence ends
	if err := service.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Engine exited with error")
		log.Fatalf("Engine exited with error: %v", err)
	}
}

func buildExchange(ctx context.Context, cfg *config.Config, appLogger ports.Logger) (ports.ExchangeAdapter, error) {
	switch cfg.Exchange {
	case domain.ExchangePoloniex:
		return poloniex.New(poloniex.Config{
			APIKey:    cfg.PoloniexAPIKey,
			SecretKey: cfg.PoloniexSecretKey,
			Logger:    appLogger,
		})
	default:
		return binance.New(ctx, binance.Config{
			APIKey:    cfg.BinanceAPIKey,
			SecretKey: cfg.BinanceSecretKey,
			Logger:    appLogger,
		})
	}
}
