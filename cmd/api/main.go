package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/OriD-19/vendly-backend/internal/api"
	"github.com/OriD-19/vendly-backend/internal/auth"
	"github.com/OriD-19/vendly-backend/internal/command"
	"github.com/OriD-19/vendly-backend/internal/config"
	"github.com/OriD-19/vendly-backend/internal/domain/inventory"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/kafka"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/notification"
	"github.com/OriD-19/vendly-backend/internal/platform/observability"
	"github.com/OriD-19/vendly-backend/internal/projection"
	"github.com/OriD-19/vendly-backend/internal/query"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, config.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.TracingEnabled() {
		_, shutdown, err := observability.SetupTracingSDK(ctx, observability.TracingConfig{
			ServiceName:    config.ServiceName,
			ServiceVersion: config.ServiceVersion,
			Endpoint:       cfg.OtelEndpoint,
			URLPath:        config.TracesPath,
			AuthHeader:     cfg.OtelAuthHeader,
		})
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer done()
			_ = shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting order engine",
		zap.String("event_store", cfg.EventStore),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("addr", cfg.HTTPAddr))

	// Postgres backs the read models whenever the write side is durable; the
	// memory store keeps its read models in process.
	var db *sql.DB
	if cfg.EventStore != config.StoreMemory {
		db, err = store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
	}

	var readStore store.ReadStoreInterface = store.NewReadStore()
	if db != nil {
		pgReadStore := store.NewPostgresReadStore(db)
		if err := pgReadStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("read store schema: %w", err)
		}
		readStore = pgReadStore
	}
	projector := projection.NewProjector(readStore, logger)
	inProcessReads := db == nil

	// Domain events go to Kafka when brokers are configured. Without Kafka the
	// projector is fed directly.
	var publisher store.Publisher = projector
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		publisher = producer
	}

	eventStore, err := openEventStore(ctx, cfg, db, publisher, logger)
	if err != nil {
		return err
	}

	emitter := newEmitter(cfg, logger)
	if closer, ok := emitter.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	ledger := inventory.NewLedger(eventStore, logger)
	orderSvc := order.NewService(eventStore, cfg.SnapshotThreshold, logger)
	cmdHandler := command.NewHandler(eventStore, orderSvc, ledger, emitter, logger)
	if err := cmdHandler.Recover(ctx); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	var wg sync.WaitGroup
	if inProcessReads {
		if err := replayEvents(ctx, eventStore, projector, logger); err != nil {
			return err
		}
		if cfg.KafkaEnabled() {
			consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ConsumerGroup+"-api", logger)
			defer consumer.Close()
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
					logger.Error("projection consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, config.AccessTokenExpiry)
	server := api.NewServer(cmdHandler, query.NewHandler(readStore, logger), jwtService, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Engine(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func openEventStore(ctx context.Context, cfg *config.Config, db *sql.DB, publisher store.Publisher, logger *zap.Logger) (store.EventStoreInterface, error) {
	switch cfg.EventStore {
	case config.StorePostgres:
		es := store.NewPostgresEventStore(db, publisher, logger)
		if err := es.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("event store schema: %w", err)
		}
		return es, nil
	case config.StoreDynamo:
		// Events reach the projector through DynamoDB Streams and the
		// Lambda projector, so the publisher is not used here.
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return store.NewDynamoEventStore(client, cfg.DynamoEventsTable, cfg.DynamoSnapshotsTable), nil
	default:
		return store.NewEventStore(publisher, logger), nil
	}
}

// newEmitter publishes customer notifications to Kafka when brokers are
// configured, and always logs them.
func newEmitter(cfg *config.Config, logger *zap.Logger) notification.Emitter {
	logEmitter := notification.NewLogEmitter(logger)
	if !cfg.KafkaEnabled() {
		return logEmitter
	}
	producer := kafka.NewAsyncProducer(cfg.KafkaBrokers, cfg.NotificationTopic, logger)
	return &closingEmitter{
		Emitter: notification.MultiEmitter{notification.NewKafkaEmitter(producer, logger), logEmitter},
		close:   producer.Close,
	}
}

type closingEmitter struct {
	notification.Emitter
	close func() error
}

func (e *closingEmitter) Close() error { return e.close() }

// replayEvents rebuilds in-process read models from the event store.
func replayEvents(ctx context.Context, eventStore store.EventStoreInterface, projector *projection.Projector, logger *zap.Logger) error {
	events, err := eventStore.GetAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("read events for replay: %w", err)
	}
	for _, event := range events {
		if err := projector.Project(ctx, event); err != nil {
			logger.Error("replay failed for event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	logger.Info("read models rebuilt", zap.Int("events", len(events)))
	return nil
}
