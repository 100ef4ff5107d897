package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/config"
	"github.com/hamed0406/uptimeviewer/internal/httpapi"
	"github.com/hamed0406/uptimeviewer/internal/logging"
	"github.com/hamed0406/uptimeviewer/internal/metrics"
	"github.com/hamed0406/uptimeviewer/internal/probe"
	"github.com/hamed0406/uptimeviewer/internal/registry"
	"github.com/hamed0406/uptimeviewer/internal/repo"
	"github.com/hamed0406/uptimeviewer/internal/repo/memory"
	"github.com/hamed0406/uptimeviewer/internal/repo/postgres"
	"github.com/hamed0406/uptimeviewer/internal/repo/sqlite"
	"github.com/hamed0406/uptimeviewer/internal/scheduler"
	"github.com/hamed0406/uptimeviewer/internal/tracker"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config_invalid", zap.Error(err))
	}
	logger.Info("config_loaded",
		zap.String("addr", cfg.Addr),
		zap.String("db_driver", cfg.DBDriver),
		zap.Int("targets", len(cfg.URLs)),
		zap.Duration("check_interval", cfg.CheckInterval),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("retry_attempts", cfg.RetryAttempts),
		zap.Int("max_concurrent_checks", cfg.MaxConcurrentChecks),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repo.Connect(ctx, logger, cfg.DBConnectAttempts, cfg.DBConnectDelay, opener(cfg, logger))
	if err != nil {
		logger.Fatal("store_unavailable", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer store.Close()

	reg := registry.New(store, logger)
	if _, err := reg.Seed(ctx, cfg.URLs); err != nil {
		logger.Fatal("seed_targets_failed", zap.Error(err))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	var prober probe.Prober = probe.NewHTTPProber(cfg.HTTPTimeout)
	if cfg.RetryAttempts > 1 {
		prober = &probe.RetryProber{Inner: prober, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}

	mon := scheduler.NewMonitor(logger, reg, prober, tracker.New(store), m, cfg.CheckInterval, cfg.MaxConcurrentChecks)
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		mon.Run(ctx)
	}()

	api := httpapi.NewServer(logger, store, m)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			PublicRPM:      cfg.PublicRPM,
			PublicBurst:    cfg.PublicBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	<-monDone
	logger.Info("shutdown_complete")
}

// opener picks the store adapter for the configured driver.
func opener(cfg config.Config, logger *zap.Logger) func(context.Context) (repo.Store, error) {
	return func(ctx context.Context) (repo.Store, error) {
		switch cfg.DBDriver {
		case config.DriverPostgres:
			s, err := postgres.New(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		case config.DriverSQLite:
			s, err := sqlite.New(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		default:
			return memory.New(), nil
		}
	}
}
