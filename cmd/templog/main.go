package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/oauth2"

	httpapi "github.com/i474232898/templog/internal/api/http"
	"github.com/i474232898/templog/internal/auth"
	"github.com/i474232898/templog/internal/config"
	"github.com/i474232898/templog/internal/logging"
	"github.com/i474232898/templog/internal/metrics"
	"github.com/i474232898/templog/internal/notify"
	"github.com/i474232898/templog/internal/scheduler"
	"github.com/i474232898/templog/internal/series"
	"github.com/i474232898/templog/internal/series/providers"
	"github.com/i474232898/templog/internal/store"
)

const appName = "templog"

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("templog stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.AppEnv, version, appName)
	slog.SetDefault(log)

	identity := newIdentity(cfg)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider, closer, err := newProvider(cfg, httpClient, identity)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	log.Info("provider selected", "backend", cfg.Backend)

	m := metrics.NewMetrics()
	notes := notify.NewCenter(cfg.NotificationTimeout)

	st := series.NewStore(provider, series.StoreConfig{
		Identity:    identity,
		RequireAuth: cfg.RequireAuth,
		Location:    cfg.Location,
		Logger:      log,
	})
	service := series.NewService(st, identity, notes, m, log)

	// Initial load; failures are already routed to the notification channel.
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := service.SignIn(startCtx); err != nil {
		log.Warn("initial load failed", "error", err)
	}
	cancelStart()

	// Scheduler that periodically resyncs the series.
	sched := scheduler.New(cfg.ResyncInterval, service, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": appName,
			"version": version,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, notes, m)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()
	log.Info("listening", "port", cfg.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	return nil
}

// session is both the series identity and the token source for remote
// providers.
type session interface {
	series.Identity
	oauth2.TokenSource
}

func newIdentity(cfg *config.AppConfig) session {
	if cfg.UsesOAuth() {
		return auth.NewOAuthIdentity(&oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.GoogleTokenURL},
		}, cfg.GoogleRefreshToken)
	}
	return auth.NewStaticIdentity(cfg.GoogleAccessToken)
}

func newProvider(cfg *config.AppConfig, client *http.Client, tokens oauth2.TokenSource) (series.Provider, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return db, db, nil
	case config.BackendSheets:
		return providers.NewSheetsProvider(client, tokens, cfg.SheetsBaseURL, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName), nil, nil
	case config.BackendRealtimeDB:
		return providers.NewRealtimeDBProvider(client, tokens, cfg.RealtimeDBURL, cfg.RealtimeDBPath), nil, nil
	default:
		return store.NewMemoryStore(cfg.StoreMaxHistory), nil, nil
	}
}
