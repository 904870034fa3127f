package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/voxloop/feedback-platform/internal/api/router"
	"github.com/voxloop/feedback-platform/internal/config"
	"github.com/voxloop/feedback-platform/internal/escalation"
	"github.com/voxloop/feedback-platform/internal/feedback"
	"github.com/voxloop/feedback-platform/internal/http/handlers"
	"github.com/voxloop/feedback-platform/internal/notify"
	"github.com/voxloop/feedback-platform/internal/observability/metrics"
	"github.com/voxloop/feedback-platform/internal/sla"
	"github.com/voxloop/feedback-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connecting to postgres failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Reporting queries run on database/sql via the pgx stdlib driver.
	statsDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("opening stats connection failed", "error", err)
		os.Exit(1)
	}
	defer statsDB.Close()

	engineMetrics := metrics.NewEngineMetrics(nil)

	feedbackStore := feedback.NewStore(pool)
	policyStore := sla.NewPolicyStore(pool)
	recordStore := escalation.NewStore(pool)
	outbox := notify.NewOutboxStore(pool)
	contacts := notify.NewContactStore(pool)
	statsRepo := escalation.NewStatsRepository(statsDB, cfg.StatsWindow)

	notifier := notify.NewService(outbox, contacts, logger)
	engine := escalation.NewEngine(escalation.EngineParams{
		Policies:              policyStore,
		Items:                 feedbackStore,
		Records:               recordStore,
		Notifier:              notifier,
		Metrics:               engineMetrics,
		Logger:                logger,
		CriticalRatingMax:     cfg.CriticalRatingMax,
		RepeatIncidentMinOpen: cfg.RepeatIncidentMinOpen,
	})

	h := handlers.NewHandler(engine, recordStore, policyStore, statsRepo, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(cfg, h, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
