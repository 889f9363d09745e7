package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/notifyhq/delivery-pipeline/internal/config"
	"github.com/notifyhq/delivery-pipeline/internal/handler"
	"github.com/notifyhq/delivery-pipeline/internal/infra/postgresql"
	"github.com/notifyhq/delivery-pipeline/internal/infra/postgresql/migrations"
	infraredis "github.com/notifyhq/delivery-pipeline/internal/infra/redis"
	"github.com/notifyhq/delivery-pipeline/internal/observability"
	"github.com/notifyhq/delivery-pipeline/internal/provider"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
	"github.com/notifyhq/delivery-pipeline/internal/transport"
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
	metrics := observability.NewMetrics()

	registry := provider.NewRegistry(
		provider.NewSESAdapter(cfg.VerifyFromEmail, cfg.InviteFromEmail),
		provider.NewTwilioAdapter(),
		provider.NewMMGAdapter(),
		provider.NewFiretextAdapter(),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(transport.CorrelationID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	if err := handler.RegisterCallbackRoutes(app, registry, publisher, metrics); err != nil {
		logger.Fatal("failed to register callback routes", zap.Error(err))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down api")
		_ = app.Shutdown()
	}()

	logger.Info("delivery-pipeline api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
}
