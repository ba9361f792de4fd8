package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func eventImage(id, aggregateID string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute(aggregateID),
		"aggregate_type": events.NewStringAttribute("Order"),
		"event_type":     events.NewStringAttribute("OrderPlaced"),
		"data":           events.NewStringAttribute(`{"order_id":"` + aggregateID + `"}`),
		"created_at":     events.NewStringAttribute("2025-01-15T10:30:00.123456789Z"),
		"version":        events.NewNumberAttribute("1"),
	}
}

func kinesisRecord(t *testing.T, seq string, change events.DynamoDBEventRecord) events.KinesisEventRecord {
	t.Helper()
	raw, err := json.Marshal(change)
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shard-1:" + seq,
		Kinesis: events.KinesisRecord{Data: raw, SequenceNumber: seq},
	}
}

func insert(image map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventName: "INSERT",
		Change:    events.DynamoDBStreamRecord{NewImage: image},
	}
}

func TestDecodeImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{"valid event", eventImage("event-123", "order-456"), false},
		{"nil image", nil, true},
		{"missing required fields", map[string]events.DynamoDBAttributeValue{
			"id": events.NewStringAttribute("event-123"),
		}, true},
		{"bad timestamp", func() map[string]events.DynamoDBAttributeValue {
			img := eventImage("event-123", "order-456")
			img["created_at"] = events.NewStringAttribute("yesterday")
			return img
		}(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := decodeImage(tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "event-123", event.ID)
			assert.Equal(t, "order-456", event.AggregateID)
			assert.Equal(t, "Order", event.AggregateType)
			assert.Equal(t, "OrderPlaced", event.EventType)
			assert.Equal(t, 1, event.Version)
			assert.JSONEq(t, `{"order_id":"order-456"}`, string(event.Data))
			assert.True(t, event.Timestamp.Equal(time.Date(2025, 1, 15, 10, 30, 0, 123456789, time.UTC)))
		})
	}
}

func TestDecodeStreamRecord_SkipsNonEvents(t *testing.T) {
	tests := []struct {
		name   string
		record events.DynamoDBEventRecord
	}{
		{"modify", events.DynamoDBEventRecord{EventName: "MODIFY"}},
		{"remove", events.DynamoDBEventRecord{EventName: "REMOVE"}},
		{"snapshot row", insert(map[string]events.DynamoDBAttributeValue{
			"aggregate_id": events.NewStringAttribute("order-1"),
			"state":        events.NewStringAttribute(`{}`),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeStreamRecord(tt.record)
			require.NoError(t, err)
			assert.Nil(t, event)
		})
	}
}

func TestDecodeKinesisRecord(t *testing.T) {
	event, err := DecodeKinesisRecord(kinesisRecord(t, "1", insert(eventImage("event-123", "order-456"))))

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "event-123", event.ID)
}

func TestProcessBatch(t *testing.T) {
	var projected []string
	project := func(ctx context.Context, event store.Event) error {
		if event.AggregateID == "order-poison" {
			return errors.New("projection failed")
		}
		projected = append(projected, event.ID)
		return nil
	}

	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", insert(eventImage("event-1", "order-1"))),
		kinesisRecord(t, "2", events.DynamoDBEventRecord{EventName: "MODIFY"}),
		{EventID: "shard-1:3", Kinesis: events.KinesisRecord{Data: []byte("invalid json"), SequenceNumber: "3"}},
		kinesisRecord(t, "4", insert(eventImage("event-4", "order-poison"))),
		kinesisRecord(t, "5", insert(eventImage("event-5", "order-5"))),
	}}

	resp := ProcessBatch(context.Background(), batch, project, zap.NewNop())

	assert.Equal(t, []string{"event-1", "event-5"}, projected)
	require.Len(t, resp.BatchItemFailures, 2)
	assert.Equal(t, "3", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, "4", resp.BatchItemFailures[1].ItemIdentifier)
}
