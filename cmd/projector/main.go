package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/OriD-19/vendly-backend/internal/config"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/kafka"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/platform/observability"
	"github.com/OriD-19/vendly-backend/internal/projection"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "projector: %v\n", err)
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
	if !cfg.KafkaEnabled() {
		return fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}

	logger, err := observability.NewLogger(cfg.LogLevel, config.ServiceName+"-projector")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	readStore := store.NewPostgresReadStore(db)
	if err := readStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("read store schema: %w", err)
	}
	projector := projection.NewProjector(readStore, logger)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ConsumerGroup, logger)
	defer consumer.Close()

	logger.Info("projector consuming",
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.ConsumerGroup))
	if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
		return fmt.Errorf("consume: %w", err)
	}
	logger.Info("projector stopped")
	return nil
}
