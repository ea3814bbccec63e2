package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pacelane/stride/internal/adapters/http/api"
	"github.com/pacelane/stride/internal/adapters/storage/postgres"
	service "github.com/pacelane/stride/internal/app"
	"github.com/pacelane/stride/internal/config"
	"github.com/pacelane/stride/internal/migrations"
	"github.com/pacelane/stride/pkg/logger"
	"github.com/pacelane/stride/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Source of truth.
	store, err := postgres.NewAdapter(cfg.PostgresDSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		log.Error(ctx, "connecting to postgres", logger.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	if err := migrations.Run(ctx, store.DB(), cfg.AutoMigrate); err != nil {
		log.Error(ctx, "running migrations", logger.Error(err))
		return
	}

	// Cache engine and update pipeline.
	svc := service.New(store,
		service.WithLogger(log),
		service.WithCacheTTL(time.Duration(cfg.CacheTTLSeconds)*time.Second),
		service.WithCacheTimeout(time.Duration(cfg.CacheTimeoutMS)*time.Millisecond),
		service.WithSourceTimeout(time.Duration(cfg.SourceTimeoutMS)*time.Millisecond),
		service.WithQueueSize(cfg.UpdateQueueSize),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithRebuildParallelism(cfg.RebuildParallelism),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithPointRates(cfg.PointRates),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "starting service", logger.Error(err))
		return
	}
	defer svc.Stop(context.Background())

	go startServiceMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater periodically mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.Stats(ctx)
			if size, ok := stats["queue_size"].(int); ok {
				metrics.UpdateQueueSize(size)
			}
			if capacity, ok := stats["queue_capacity"].(int); ok {
				metrics.UpdateQueueCapacity(capacity)
			}
		}
	}
}
