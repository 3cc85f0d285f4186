package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currencylayer-bank/internal/api"
	"github.com/dalfonso89/currencylayer-bank/internal/config"
	"github.com/dalfonso89/currencylayer-bank/internal/logger"
	"github.com/dalfonso89/currencylayer-bank/internal/metrics"
	"github.com/dalfonso89/currencylayer-bank/internal/platform"
	"github.com/dalfonso89/currencylayer-bank/internal/ratelimit"
	"github.com/dalfonso89/currencylayer-bank/internal/service"
	"github.com/dalfonso89/currencylayer-bank/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	appMetrics := metrics.NewMetrics()

	cacheStore, closeStore, err := store.New(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open cache store: %v", err)
	}
	defer closeStore()

	bank, err := service.NewBankFromConfig(cfg, cacheStore, logger, service.WithMetrics(appMetrics))
	if err != nil {
		logger.Fatalf("Failed to create bank: %v", err)
	}

	rateLimiter := ratelimit.NewLimiter(cfg, logger)
	defer rateLimiter.Stop()

	handlers := api.NewHandlers(api.HandlerConfig{
		Bank:         bank,
		Logger:       logger,
		Metrics:      appMetrics,
		RateLimiter:  rateLimiter,
		CacheBackend: cfg.CacheBackend,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + cfg.FetchTimeout,
	}

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	if cfg.RefreshInterval > 0 {
		go refreshRates(shutdownCtx, bank, cfg.RefreshInterval, logger)
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"source": bank.Source(),
			"cache":  cfg.CacheBackend,
			"ttl":    cfg.RatesTTL.String(),
		}).Info("Starting currencylayer bank")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// refreshRates runs the freshness check on a ticker so requests rarely wait on the feed.
func refreshRates(ctx context.Context, bank *service.Bank, interval time.Duration, logger *logrus.Logger) {
	if _, err := bank.EnsureFresh(ctx); err != nil {
		logger.Errorf("Failed to load rates at startup: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := bank.EnsureFresh(ctx); err != nil {
				logger.Errorf("Failed to refresh rates: %v", err)
			}
		case <-ctx.Done():
			logger.Debug("Stopping background refresh")
			return
		}
	}
}
