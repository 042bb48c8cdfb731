package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/you/alarmchain/handlers"
	"github.com/you/alarmchain/internal/cache"
	"github.com/you/alarmchain/internal/metrics"
	"github.com/you/alarmchain/internal/query"
	"github.com/you/alarmchain/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

// ledger is the union of what the service and the health check need
type ledger interface {
	query.UploadLedger
	handlers.Pinger
}

// openLedger connects the configured upload ledger. Postgres wins over SQLite;
// neither configured returns a nil ledger.
func openLedger(ctx context.Context) (ledger, func(), error) {
	switch cfg.LedgerBackend() {
	case "postgres":
		logger.Info("Connecting to Postgres upload ledger")
		repo, err := repository.NewUploadRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case "sqlite":
		logger.WithField("path", cfg.SQLitePath).Info("Connecting to SQLite upload ledger")
		repo, err := repository.OpenSQLiteLedger(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
	logger.Info("No upload ledger configured")
	return nil, func() {}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	led, closeLedger, err := openLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize upload ledger: %w", err)
	}
	defer closeLedger()

	store := cache.NewStore(
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithEvictionHook(func(key string) {
			metrics.CacheEvictions.Inc()
			logger.WithField("cache_key", key).Info("Dataset evicted")
		}),
	)

	// Keep interface values nil when no ledger is configured
	var (
		uploadLedger query.UploadLedger
		pinger       handlers.Pinger
	)
	if led != nil {
		uploadLedger, pinger = led, led
	}
	svc := query.NewService(store, uploadLedger, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Analytics:   handlers.NewAnalyticsHandler(svc, logger),
		Upload:      handlers.NewUploadHandler(svc, cfg.MaxUploadBytes(), cfg.UploadRatePerMin, logger),
		Health:      handlers.NewHealthHandler(svc, pinger),
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"port":              cfg.Port,
		"ledger":            cfg.LedgerBackend(),
		"cache_max_entries": cfg.CacheMaxEntries,
		"max_upload_mb":     cfg.MaxUploadMB,
	}).Info("API server starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
