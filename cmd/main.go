package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencourts/courtmap/internal/adapters/http/api"
	"github.com/opencourts/courtmap/internal/adapters/repository"
	app "github.com/opencourts/courtmap/internal/app"
	"github.com/opencourts/courtmap/internal/config"
	"github.com/opencourts/courtmap/internal/domain/viewcache"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build store", logger.Error(err))
		return
	}
	defer store.Close()

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithResultLimit(cfg.ResultLimit),
		app.WithViewCacheOptions(
			viewcache.WithCapacity(cfg.CacheCapacity),
			viewcache.WithPixelRadius(cfg.CachePixelRadius),
			viewcache.WithDebounce(time.Duration(cfg.CacheDebounceMS)*time.Millisecond),
		),
	)

	go startGaugeUpdater(ctx, svc, time.Duration(cfg.MetricsRefreshSeconds)*time.Second)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)

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
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// buildStore selects Postgres when a DSN is configured, otherwise an
// in-memory store optionally warmed from a snapshot.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	if cfg.PostgresDSN != "" {
		return repository.NewPGStore(ctx, cfg.PostgresDSN,
			repository.WithPGLockTimeout(time.Duration(cfg.LockWaitMS)*time.Millisecond),
			repository.WithPGLogger(log),
		)
	}

	mem := repository.NewMemStore(
		repository.WithLockWait(time.Duration(cfg.LockWaitMS)*time.Millisecond),
		repository.WithLogger(log),
	)
	if cfg.SnapshotPath != "" {
		if err := mem.LoadSnapshot(ctx, cfg.SnapshotPath); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

// startGaugeUpdater refreshes the entity-count gauges from service stats.
func startGaugeUpdater(ctx context.Context, svc *app.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := svc.Stats(ctx)
			metrics.UpdateCourtCount(st.Courts)
			metrics.UpdateFacilityCount(st.Facilities)
		}
	}
}
