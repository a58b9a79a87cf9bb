package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"manual-polling-tool/internal/api"
	"manual-polling-tool/internal/config"
	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/poll"
	"manual-polling-tool/internal/registry"
	"manual-polling-tool/internal/storage"
	"manual-polling-tool/internal/supervisor"
	"manual-polling-tool/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logConfig(logger, cfg)

	reg, err := loadRegistry(cfg.ProvidersFile)
	if err != nil {
		logger.Error("failed to load provider forms", "err", err)
		os.Exit(2)
	}

	client, err := poll.NewClient(cfg.BackendURL, 0, cfg.ResponseMaxBytes)
	if err != nil {
		logger.Error("failed to create backend client", "err", err)
		os.Exit(2)
	}

	features := cfg.Features()

	var metrics *supervisor.Metrics
	if features.Metrics {
		metrics = supervisor.NewMetrics()
	}

	var eventBus *supervisor.EventBus
	if features.Events {
		eventBus = supervisor.NewEventBus(cfg.EventBuffer)
		defer eventBus.Shutdown()
	}

	tracker := supervisor.NewTracker(cfg.RecentBuffer, eventBus, metrics)

	store := openStore(cfg, features, logger)
	if store != nil {
		defer store.Close()
	}

	var healthChecker *supervisor.HealthChecker
	if features.HealthCheck {
		healthChecker = supervisor.NewHealthChecker(cfg.BackendURL, cfg.HealthCheckPath,
			cfg.HealthCheckInterval, cfg.HealthCheckTimeout, metrics, logger)
		defer healthChecker.Shutdown()
	}

	board := form.NewBoard(reg, client, form.NewDateSeeder(cfg.DateLookbackDays), form.Options{
		Policy:  form.Policy(cfg.SubmitPolicy),
		Timeout: cfg.SubmitTimeout,
		Tracker: tracker,
		Metrics: metrics,
		Store:   store,
		Logger:  logger,
	})

	var apiServer *api.Server
	if features.API {
		apiServer = api.NewServer(board, store, cfg, logger)
	}

	h, err := web.NewHandler(cfg, board, store, apiServer, tracker, eventBus, metrics, healthChecker, logger)
	if err != nil {
		logger.Error("failed to build console", "err", err)
		os.Exit(2)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting manual-polling-tool", "listen", cfg.ListenAddr, "backend", cfg.BackendURL,
		"providers", strings.Join(reg.IDs(), ","))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}

// openStore returns the configured history store, falling back to memory
// when the SQLite file cannot be opened.
func openStore(cfg config.Config, features config.Features, logger *slog.Logger) storage.Store {
	if !features.Storage {
		return nil
	}
	switch cfg.Storage {
	case config.StorageSQLite:
		s, err := storage.NewSQLiteStore(cfg.StoragePath, cfg.StorageMaxRows, logger)
		if err == nil {
			return s
		}
		logger.Warn("sqlite storage unavailable, using memory", "err", err, "path", cfg.StoragePath)
		return storage.NewMemoryStore(cfg.StorageMaxRows)
	case config.StorageMemory:
		return storage.NewMemoryStore(cfg.StorageMaxRows)
	default:
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "info":
		lvl.Set(slog.LevelInfo)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"mode", string(cfg.Mode),
		"listen_addr", cfg.ListenAddr,
		"backend_url", cfg.BackendURL,
		"providers_file", cfg.ProvidersFile,
		"submit_policy", string(cfg.SubmitPolicy),
		"submit_timeout", cfg.SubmitTimeout,
		"date_lookback_days", cfg.DateLookbackDays,
		"response_max_bytes", cfg.ResponseMaxBytes,
		"storage", string(cfg.Storage),
		"storage_path", cfg.StoragePath,
		"storage_max_rows", cfg.StorageMaxRows,
		"metrics_enabled", cfg.MetricsEnabled,
		"events_enabled", cfg.EventsEnabled,
		"health_check_interval", cfg.HealthCheckInterval,
		"request_body_max_bytes", cfg.RequestBodyMaxBytes,
		"cors_allow_origin", cfg.CORSAllowOrigin,
		"log_level", cfg.LogLevel,
	)
}
