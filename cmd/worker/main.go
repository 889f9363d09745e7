package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhq/delivery-pipeline/internal/config"
	"github.com/notifyhq/delivery-pipeline/internal/dispatcher"
	"github.com/notifyhq/delivery-pipeline/internal/identity"
	"github.com/notifyhq/delivery-pipeline/internal/infra/postgresql"
	"github.com/notifyhq/delivery-pipeline/internal/infra/postgresql/migrations"
	infraredis "github.com/notifyhq/delivery-pipeline/internal/infra/redis"
	"github.com/notifyhq/delivery-pipeline/internal/observability"
	"github.com/notifyhq/delivery-pipeline/internal/pipeline"
	"github.com/notifyhq/delivery-pipeline/internal/provider"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
	"github.com/notifyhq/delivery-pipeline/internal/repository"
	"github.com/notifyhq/delivery-pipeline/internal/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	retryDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL, retryDelay)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	metrics := observability.NewMetrics()

	notifications := repository.NewGormNotificationRepo(db)
	callbacks := repository.NewGormServiceCallbackRepo(db)
	complaints := repository.NewGormComplaintRepo(db)
	inboundSMS := repository.NewGormInboundSMSRepo(db)
	attempts := repository.NewGormCallbackAttemptRepo(db)

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.CallbackRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	dispatch, err := dispatcher.NewDispatcher(
		callbacks,
		notifications,
		complaints,
		inboundSMS,
		attempts,
		publisher,
		dispatcher.NewSender(),
		limiter,
		logger,
		metrics,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatch.SetOperatorChannel(cfg.OperatorNotifyURL, cfg.OperatorNotifyToken)

	var contacts identity.ContactLookup
	if cfg.ProfileServiceURL != "" {
		client, err := identity.NewProfileClient(cfg.ProfileServiceURL, cfg.ProfileServiceToken)
		if err != nil {
			logger.Fatal("profile client initialization failed", zap.Error(err))
		}
		contacts = client
	}

	deliveryPolicy := mustPolicy("process-delivery-status", queue.QueueCallbacks, cfg.MaxTaskAttempts, publisher, notifications, logger, metrics)
	// Callback delivery failures must never touch notification status, so
	// this policy carries no status marker.
	callbackPolicy := mustPolicy("deliver-service-callback", queue.QueueServiceCallbacks, cfg.MaxTaskAttempts, publisher, nil, logger, metrics)
	lookupPolicy := mustPolicy("lookup-contact-info", queue.QueueContactLookups, cfg.MaxTaskAttempts, publisher, notifications, logger, metrics)

	registry := provider.NewRegistry(
		provider.NewSESAdapter(cfg.VerifyFromEmail, cfg.InviteFromEmail),
		provider.NewTwilioAdapter(),
		provider.NewMMGAdapter(),
		provider.NewFiretextAdapter(),
	)

	processor, err := pipeline.NewProcessor(
		registry,
		notifications,
		complaints,
		dispatch,
		contacts,
		deliveryPolicy,
		callbackPolicy,
		lookupPolicy,
		logger,
		metrics,
	)
	if err != nil {
		logger.Fatal("processor initialization failed", zap.Error(err))
	}

	worker, err := pipeline.NewWorker(processor, consumer, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("delivery-pipeline worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("maxTaskAttempts", cfg.MaxTaskAttempts),
	)
	if err := worker.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("worker failed", zap.Error(err))
	}

	logger.Info("delivery-pipeline worker stopped")
}

func mustPolicy(taskName string, targetQueue string, maxAttempts int, publisher queue.Publisher, marker retry.StatusMarker, logger *zap.Logger, metrics *observability.Metrics) *retry.Policy {
	policy, err := retry.NewPolicy(taskName, targetQueue, maxAttempts, publisher, marker, logger)
	if err != nil {
		logger.Fatal("retry policy initialization failed", zap.String("task", taskName), zap.Error(err))
	}
	policy.SetMetrics(metrics)
	return policy
}
