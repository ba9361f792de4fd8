package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/OriD-19/vendly-backend/internal/config"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/kinesis"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/platform/observability"
	"github.com/OriD-19/vendly-backend/internal/projection"
)

var (
	projector *projection.Projector
	logger    *zap.Logger
)

// init runs once per Lambda container; the connection is reused across
// invocations.
func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err = observability.NewLogger(cfg.LogLevel, config.ServiceName+"-lambda-projector")
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}

	readStore := store.NewPostgresReadStore(db)
	if err := readStore.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("failed to ensure read store schema", zap.Error(err))
	}
	projector = projection.NewProjector(readStore, logger)
	logger.Info("lambda projector initialized")
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.ProcessBatch(ctx, batch, projector.Project, logger), nil
}

func main() {
	lambda.Start(handler)
}
