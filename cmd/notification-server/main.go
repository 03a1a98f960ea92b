// Package main provides the notification server: the retry pipeline consuming
// the notification topics plus an HTTP API for reporting book status changes.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify"
	"github.com/coregx/booknotify/adapters/kafka"
	promadapter "github.com/coregx/booknotify/adapters/prometheus"
	redisadapter "github.com/coregx/booknotify/adapters/redis"
	"github.com/coregx/booknotify/adapters/relica"
	"github.com/coregx/booknotify/cmd/notification-server/internal/api"
	"github.com/coregx/booknotify/cmd/notification-server/internal/config"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := booknotify.NewLogger(booknotify.LoggerConfig{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: serviceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Notification server failed")
	}
	logger.Info().Msg("Server stopped gracefully")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Str("retry_schedule", cfg.Policy().String()).
		Str("failure_mode", cfg.Processor.FailureMode).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		wishlist    booknotify.WishlistRepository
		repos       *relica.Repositories
		handlerOpts []api.HandlerOption
	)

	if cfg.NeedsDatabase() {
		db, err := openDatabase(cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("Failed to close database")
			}
		}()
		logger.Info().Str("driver", cfg.Database.Driver).Msg("Database connection established")
		handlerOpts = append(handlerOpts, api.WithHealthCheck("database", db.PingContext))

		if cfg.Database.AutoMigrate {
			if err := relica.Migrate(ctx, db, cfg.Database.Driver, cfg.Database.Prefix, logger); err != nil {
				return err
			}
			logger.Info().Msg("Database migrations applied")
		}

		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
		wishlist = repos.Wishlist
	}

	if !cfg.WishlistFromDatabase() {
		client, err := redisadapter.Connect(ctx, redisadapter.Config{
			ConnectionURL:  cfg.Redis.URL,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("Failed to close redis client")
			}
		}()
		logger.Info().Msg("Redis wishlist connected")
		wishlist = redisadapter.NewWishlist(client)
		handlerOpts = append(handlerOpts, api.WithHealthCheck("redis", redisadapter.Healthcheck(client)))
	}

	producer, subscriber, err := kafka.ConnectWithRetry(cfg.KafkaAdapterConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := producer.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("Failed to close Kafka producer")
		}
	}()
	logger.Info().Msg("Kafka producer and consumer connected")

	metrics := promadapter.New(prometheus.DefaultRegisterer, promadapter.DefaultNamespace)

	processor, err := newProcessor(cfg.Processor, cfg.Policy().MaxAttempts, logger)
	if err != nil {
		return err
	}

	dltOpts := []booknotify.DeadLetterHandlerOption{booknotify.WithAlertHook(metrics)}
	if cfg.Database.PersistDeadLetters && repos != nil {
		dltOpts = append(dltOpts, booknotify.WithPersistHook(repos.DeadLetters))
	}

	pipeline, err := booknotify.NewPipeline(
		booknotify.WithProducer(producer),
		booknotify.WithBaseTopic(cfg.Kafka.Topic),
		booknotify.WithProcessor(processor),
		booknotify.WithPolicy(cfg.Policy()),
		booknotify.WithDeadLetterHandler(booknotify.NewLoggingDeadLetterHandler(logger, dltOpts...)),
		booknotify.WithLogger(logger),
		booknotify.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	publisher, err := booknotify.NewPublisher(
		booknotify.WithPublisherProducer(producer),
		booknotify.WithTopic(cfg.Kafka.Topic),
		booknotify.WithPublisherLogger(logger),
		booknotify.WithPublisherMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	notifier, err := booknotify.NewAvailabilityNotifier(wishlist, publisher, logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	handlerOpts = append(handlerOpts, api.WithWishlist(wishlist))
	if cfg.Database.PersistDeadLetters && repos != nil {
		handlerOpts = append(handlerOpts, api.WithDeadLetters(repos.DeadLetters))
	}
	handler := api.NewHandler(notifier, publisher, pipeline, logger, handlerOpts...)

	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- pipeline.Run(ctx, subscriber)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, promhttp.Handler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-pipelineDone:
		runErr = fmt.Errorf("pipeline stopped: %w", err)
		pipelineDone = nil
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	if pipelineDone != nil {
		select {
		case err := <-pipelineDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("Pipeline stopped with error")
			}
		case <-shutdownCtx.Done():
			logger.Warn().Msg("Pipeline did not stop before the shutdown timeout")
		}
	}

	return runErr
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newProcessor builds the logging processor, wrapped in a failure injector
// unless the failure mode is never.
func newProcessor(cfg config.ProcessorConfig, maxAttempts int, logger zerolog.Logger) (booknotify.Processor, error) {
	var processor booknotify.Processor = booknotify.NewLoggingProcessor(logger, cfg.SendLatency)

	mode, err := booknotify.ParseFailureMode(cfg.FailureMode)
	if err != nil {
		return nil, err
	}
	if mode == booknotify.FailNever {
		return processor, nil
	}

	logger.Warn().
		Str("mode", string(mode)).
		Int("limit", cfg.FailureLimit).
		Msg("Failure injection enabled")

	injector, err := booknotify.NewFailureInjector(processor, mode, cfg.FailureLimit,
		booknotify.WithMaxAttempts(maxAttempts))
	if err != nil {
		return nil, err
	}
	return injector, nil
}
