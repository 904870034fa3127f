package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"sync"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/voxloop/feedback-platform/internal/config"
	"github.com/voxloop/feedback-platform/internal/escalation"
	"github.com/voxloop/feedback-platform/internal/feedback"
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

	engineMetrics := metrics.NewEngineMetrics(nil)
	feedbackStore := feedback.NewStore(pool)
	policyStore := sla.NewPolicyStore(pool)
	recordStore := escalation.NewStore(pool)
	outbox := notify.NewOutboxStore(pool)
	contacts := notify.NewContactStore(pool)

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

	worker := escalation.NewWorker(escalation.WorkerParams{
		Engine:   engine,
		Accounts: policyStore,
		Lock:     buildScanLock(cfg, logger),
		Logger:   logger,
		Interval: cfg.ScanInterval,
		LockTTL:  cfg.ScanLockTTL,
	})

	deliverer := notify.NewDeliverer(notify.DelivererParams{
		Outbox:    outbox,
		Email:     buildEmailSender(ctx, cfg, logger),
		Queue:     buildQueuePublisher(ctx, cfg, logger),
		Logger:    logger,
		Interval:  cfg.OutboxInterval,
		BatchSize: cfg.OutboxBatchSize,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		deliverer.Start(ctx)
	}()
	wg.Wait()
}

func buildScanLock(cfg *config.Config, logger *logging.Logger) escalation.ScanLock {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, scan locking disabled")
		return escalation.NoopScanLock{}
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return escalation.NewRedisScanLock(redis.NewClient(opts))
}

func buildEmailSender(ctx context.Context, cfg *config.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("loading aws config failed, falling back to stub email", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.SESFromEmail, cfg.SESFromName)
	default:
		return notify.NewStubEmailSender(logger)
	}
}

func buildQueuePublisher(ctx context.Context, cfg *config.Config, logger *logging.Logger) notify.QueuePublisher {
	if cfg.EscalationQueueURL == "" {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Error("loading aws config failed, queue channel disabled", "error", err)
		return nil
	}
	return notify.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EscalationQueueURL)
}
