package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerdesk/ledgerdesk/internal/app"
	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	intakehttp "github.com/ledgerdesk/ledgerdesk/internal/intake/http"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/cache"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/db"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
	"github.com/ledgerdesk/ledgerdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "ledgerdesk-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	partyRepo := parties.NewRepository(dbpool)
	directory := parties.NewDirectory(partyRepo, redisClient, cfg.DirectoryCacheTTL)
	partyService := parties.NewService(partyRepo, directory, logger)
	partyHandler := parties.NewHandler(logger, partyService)

	invoiceRepo := invoices.NewRepository(dbpool)
	invoiceService := invoices.NewService(invoiceRepo, partyService, logger)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	backend := intake.NewLocalBackend(partyService, invoiceService)
	intakeService := intake.NewService(intake.ServiceConfig{
		Extractor: extraction.NewClient(cfg.ExtractionURL, cfg.ExtractionTimeout, extraction.WithLogger(logger)),
		Store:     intake.NewBatchStore(redisClient, cfg.Intake.BatchTTL),
		Enqueuer:  jobClient,
		Directory: backend,
		Backend:   backend,
		Matcher:   cfg.Intake.Matcher(),
		Defaults:  cfg.Intake.BuildDefaults(),
		Metrics:   intake.NewMetrics(metrics.Registerer()),
		Logger:    logger,
	})
	intakeHandler := intakehttp.NewHandler(logger, intakeService, cfg.UploadMaxBytes, cfg.UploadRateLimit)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Auth:            shared.NewTokenAuthenticator(cfg.APITokenHash, logger),
		PartiesHandler:  partyHandler,
		InvoicesHandler: invoiceHandler,
		IntakeHandler:   intakeHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
