package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/outflowhq/outflow/internal/api"
	"github.com/outflowhq/outflow/internal/config"
	"github.com/outflowhq/outflow/internal/db"
	"github.com/outflowhq/outflow/internal/dispatch"
	"github.com/outflowhq/outflow/internal/mailer"
	"github.com/outflowhq/outflow/internal/metrics"
	"github.com/outflowhq/outflow/internal/repository"
	"github.com/outflowhq/outflow/internal/tracking"
)

// App is the main application
type App struct {
	config    *config.Config
	logger    *slog.Logger
	database  *db.DB
	schedule  *dispatch.Schedule
	worker    *dispatch.Worker
	apiServer *api.Server
}

// New creates and wires the application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	schedule, err := dispatch.NewSchedule(cfg.Dispatch.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dispatch schedule: %w", err)
	}

	contacts := repository.NewContactRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	campaigns := repository.NewCampaignRepository(database.DB)
	sends := repository.NewSendRepository(database.DB)
	apiKeys := repository.NewAPIKeyRepository(database.DB)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var signer *mailer.Signer
	if cfg.DKIM.Enabled {
		signer, err = mailer.NewSigner(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to set up DKIM: %w", err)
		}
		logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
	}

	transport := mailer.NewSMTPTransport(cfg.SMTP, signer, logger)

	scheduler := dispatch.NewScheduler(campaigns, sends, schedule, cfg.Pacing, logger)

	worker := dispatch.NewWorker(campaigns, contacts, templates, sends, schedule, scheduler, transport, m, dispatch.WorkerConfig{
		Concurrency:  cfg.Dispatch.Workers,
		PollInterval: cfg.Dispatch.PollInterval,
		SendTimeout:  cfg.Dispatch.SendTimeout,
		BaseURL:      cfg.Server.BaseURL,
	}, logger)

	sink := tracking.NewSink(sends, campaigns, m, logger)

	apiServer := api.NewServer(cfg, api.Deps{
		Contacts:  contacts,
		Templates: templates,
		Campaigns: campaigns,
		Sends:     sends,
		APIKeys:   apiKeys,
		Scheduler: scheduler,
		Sink:      sink,
		Metrics:   m,
	}, logger)

	return &App{
		config:    cfg,
		logger:    logger,
		database:  database,
		schedule:  schedule,
		worker:    worker,
		apiServer: apiServer,
	}, nil
}

// Run starts everything and blocks until a shutdown signal or a fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting outflow",
		"listen_addr", a.config.Server.ListenAddr,
		"base_url", a.config.Server.BaseURL,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.worker.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops all components in order: no new HTTP work, then no new
// deliveries, then close storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	a.worker.Stop()

	if err := a.schedule.Close(); err != nil {
		a.logger.Error("schedule close error", "error", err)
	}
	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
