package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"paperMarginBot/config"
	"paperMarginBot/internal/adapters/logger"
	"paperMarginBot/internal/adapters/notifier"
	"paperMarginBot/internal/adapters/pricefeed"
	"paperMarginBot/internal/adapters/sqlite"
	"paperMarginBot/internal/app"
	"paperMarginBot/internal/executor"
	"paperMarginBot/internal/ports"
	"paperMarginBot/internal/risk"
)

// Starting prices for the simulated feed. Symbols not listed start at 100.
var simStartPrices = map[string]float64{
	"BTCUSD": 50000,
	"ETHUSD": 2000,
	"SOLUSD": 100,
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogJSON {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize zap logger: %v", err)
		}
		defer zl.Sync()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "json": cfg.LogJSON})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Notification Sink
	sink := notifier.New(appLogger, 256)
	defer sink.Close()

	// 5. Initialize Trade Executor
	exec, err := executor.NewTradeExecutor(cfg, appLogger, repo, sink)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade executor")
		log.Fatalf("FATAL: Failed to initialize trade executor: %v", err)
	}

	// 6. Initialize Risk Engine
	riskEngine, err := risk.NewEngine(cfg, appLogger, exec, sink)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk engine")
		log.Fatalf("FATAL: Failed to initialize risk engine: %v", err)
	}

	// 7. Initialize Price Feed
	var feed ports.PriceFeed
	if cfg.FeedKind == "ws" {
		wsFeed, err := pricefeed.NewWSFeed(pricefeed.WSConfig{
			Logger: appLogger,
			URL:    cfg.FeedURL,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize websocket price feed")
			log.Fatalf("FATAL: Failed to initialize websocket price feed: %v", err)
		}
		feed = wsFeed
	} else {
		start := make(map[string]float64, len(cfg.Symbols))
		for _, sym := range cfg.Symbols {
			if p, ok := simStartPrices[sym]; ok {
				start[sym] = p
			} else {
				start[sym] = 100
			}
		}
		feed = pricefeed.NewSimFeed(pricefeed.SimConfig{
			Logger:      appLogger,
			Interval:    cfg.FeedTickEvery,
			StartPrices: start,
		})
	}
	appLogger.Info(context.Background(), "Price feed initialized", map[string]interface{}{"kind": cfg.FeedKind})

	// 8. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, exec, riskEngine, feed)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// 9. Run
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("Trading service exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service shut down cleanly")
}
