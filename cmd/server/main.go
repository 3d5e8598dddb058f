package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"formulary/internal/compliance"
	"formulary/internal/config"
	"formulary/internal/db"
	"formulary/internal/db/mock"
	"formulary/internal/eu"
	"formulary/internal/formulations"
	applog "formulary/internal/log"
	"formulary/internal/metrics"
	"formulary/internal/resolver"
	"formulary/internal/server"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

var (
	loadConfigFunc       = config.Load
	configureLoggingFunc = applog.Configure
	newMockDatabaseFunc  = mock.New
	configureDatabase    = db.Configure
	newServerFunc        = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		return sigCh, func() { signal.Stop(sigCh) }
	}
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	if err := configureLoggingFunc(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		applog.Error(ctx, "invalid logging configuration", "level", cfg.Logging.Level, "format", cfg.Logging.Format, "error", err)
		return 1
	}

	database, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		applog.Error(ctx, "failed to configure database", "error", err)
		return 1
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	store := eu.NewStore(eu.Config{
		AdditivesURL:   cfg.EU.AdditivesURL,
		FlavouringsURL: cfg.EU.FlavouringsURL,
		TTL:            cfg.EU.CacheTTL,
		Timeout:        cfg.EU.FetchTimeout,
		FetchInterval:  cfg.EU.FetchInterval,
		Metrics:        m,
	})
	evaluator := compliance.NewEvaluator(
		formulations.NewRepository(database),
		resolver.New(store),
		compliance.WithMetrics(m),
	)

	srv, err := newServerFunc(server.Config{
		Addr: cfg.Server.Addr,
		Session: server.SessionConfig{
			Lifetime:     cfg.Auth.Session.Lifetime,
			CookieName:   cfg.Auth.Session.CookieName,
			CookieDomain: cfg.Auth.Session.CookieDomain,
			CookieSecure: cfg.Auth.Session.CookieSecure,
		},
		Database:    database,
		Checker:     evaluator,
		Datasets:    store,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
		// Both datasets may be fetched one after the other on a cold cache.
		WriteTimeout: 2*cfg.EU.FetchTimeout + 30*time.Second,
	})
	if err != nil {
		applog.Error(ctx, "failed to build server", "error", err)
		return 1
	}

	sigCh, stopSignals := subscribeShutdownSig()
	defer stopSignals()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr, "metrics", cfg.Metrics.Enabled)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	case <-ctx.Done():
		applog.Info(ctx, "shutting down http server", "reason", ctx.Err())
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Error(ctx, "server exited with error", "error", err)
		return 1
	}
	return 0
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.UseMock || strings.TrimSpace(cfg.URL) == "" {
		applog.Info(ctx, "using seeded in-memory database", "explicit", cfg.UseMock)
		return newMockDatabaseFunc(ctx)
	}
	return configureDatabase(cfg)
}
