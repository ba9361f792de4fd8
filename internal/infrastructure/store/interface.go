package store

import (
	"context"
	"errors"
)

// ErrConcurrentModification is returned when another writer appended the same
// aggregate version first.
var ErrConcurrentModification = errors.New("concurrent modification of aggregate")

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// Publisher forwards stored events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
