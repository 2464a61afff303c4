package main

import (
	"context"
	"log"
	"time"

	"unlockdesk/internal/config"
	"unlockdesk/internal/db"
	"unlockdesk/internal/logger"
	"unlockdesk/internal/provider"
	"unlockdesk/internal/store"
	"unlockdesk/internal/worker"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	w := &worker.Worker{
		Store:      store.New(pool),
		Provider:   provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey),
		Interval:   time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		WSEndpoint: cfg.Provider.WSEndpoint,
		WSAPIKey:   cfg.Provider.APIKey,
		Log:        zl,
	}

	zl.Info("worker started", zap.String("provider", cfg.Provider.BaseURL))
	w.Run(ctx)
}
