package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unlockdesk/internal/config"
	"unlockdesk/internal/db"
	"unlockdesk/internal/fulfill"
	"unlockdesk/internal/httpapi"
	"unlockdesk/internal/ledger"
	"unlockdesk/internal/logger"
	"unlockdesk/internal/notify"
	"unlockdesk/internal/pricing"
	"unlockdesk/internal/provider"
	"unlockdesk/internal/ratelimit"
	"unlockdesk/internal/services"
	"unlockdesk/internal/store"

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

	st := store.New(pool)
	providerClient := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)
	pricer := pricing.New(pool)

	orderSvc := &services.OrderService{
		Store:   st,
		Catalog: st,
		Ledger:  ledger.New(pool),
		Pricing: pricer,
		Fulfill: fulfill.New(st, providerClient, zl),
		Notify:  notify.New(st, cfg.Notify.OperatorEmail, zl),
		Log:     zl,
	}

	gate := ratelimit.NewGate(time.Duration(cfg.API.ListCooldownMin) * time.Minute)
	h := httpapi.NewHandler(st, orderSvc, pricer, gate, zl, cfg.API.Version)
	srv := httpapi.NewServer(h, zl)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		zl.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
