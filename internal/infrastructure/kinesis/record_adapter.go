package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

const insertEvent = "INSERT"

// ProjectFunc applies one decoded event, typically projection.Projector.Project.
type ProjectFunc func(ctx context.Context, event store.Event) error

// DecodeKinesisRecord decodes a DynamoDB stream change delivered through
// Kinesis. It returns nil for changes that are not new events: MODIFY and
// REMOVE records, and snapshot rows written to the same stream.
func DecodeKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return DecodeStreamRecord(change)
}

// DecodeStreamRecord decodes a DynamoDB stream record read directly.
func DecodeStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != insertEvent {
		return nil, nil
	}
	image := record.Change.NewImage
	if _, isSnapshot := image["state"]; isSnapshot {
		return nil, nil
	}
	return decodeImage(image)
}

// decodeImage maps the attribute names written by store.DynamoEventStore.
func decodeImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	event := &store.Event{}
	if v, ok := image["id"]; ok {
		event.ID = v.String()
	}
	if v, ok := image["aggregate_id"]; ok {
		event.AggregateID = v.String()
	}
	if v, ok := image["aggregate_type"]; ok {
		event.AggregateType = v.String()
	}
	if v, ok := image["event_type"]; ok {
		event.EventType = v.String()
	}
	if v, ok := image["data"]; ok {
		event.Data = json.RawMessage(v.String())
	}
	if v, ok := image["created_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("missing required fields: id=%q, aggregate_id=%q, event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}
	return event, nil
}

// ProcessBatch decodes and projects every record of a Kinesis batch in order.
// Records that fail are reported back as batch item failures so Lambda
// retries only those.
func ProcessBatch(ctx context.Context, batch events.KinesisEvent, project ProjectFunc, logger *zap.Logger) events.KinesisEventResponse {
	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord, msg string, err error) {
		logger.Error(msg, zap.String("record_id", record.EventID), zap.Error(err))
		failures = append(failures, events.KinesisBatchItemFailure{
			ItemIdentifier: record.Kinesis.SequenceNumber,
		})
	}

	for _, record := range batch.Records {
		event, err := DecodeKinesisRecord(record)
		if err != nil {
			fail(record, "failed to decode record", err)
			continue
		}
		if event == nil {
			continue
		}
		if err := project(ctx, *event); err != nil {
			fail(record, "failed to project event", err)
			continue
		}
	}

	logger.Info("processed kinesis batch",
		zap.Int("records", len(batch.Records)),
		zap.Int("failed", len(failures)))
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
