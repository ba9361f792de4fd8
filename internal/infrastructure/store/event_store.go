package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// MarshalJSON returns the JSON encoding of the event
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct{ Alias }{Alias: Alias(e)})
}

// EventStore keeps events in memory and publishes them after they are stored.
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	sequence  []Event            // global append order
	snapshots map[string]*Snapshot
	publisher Publisher
	logger    *zap.Logger
}

func NewEventStore(publisher Publisher, logger *zap.Logger) *EventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		publisher: publisher,
		logger:    logger.Named("event_store"),
	}
}

// Append stores an event and publishes it.
// A publish failure is logged only: the event is already durable and
// projections can be rebuilt by replay.
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	es.mu.Lock()
	version := len(es.events[aggregateID]) + 1
	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}
	es.events[aggregateID] = append(es.events[aggregateID], event)
	es.sequence = append(es.sequence, event)
	es.mu.Unlock()

	publish(ctx, es.publisher, es.logger, event)
	return &event, nil
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...), nil
}

// GetEventsFromVersion returns the events of an aggregate newer than fromVersion
func (es *EventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var out []Event
	for _, e := range es.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllEvents returns all events in append order
func (es *EventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.sequence...), nil
}

// SaveSnapshot replaces the snapshot of an aggregate
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	cp := *snapshot
	es.snapshots[snapshot.AggregateID] = &cp
	return nil
}

// GetSnapshot returns the latest snapshot, or nil when none exists
func (es *EventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	s, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func publish(ctx context.Context, p Publisher, logger *zap.Logger, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event.AggregateID, event); err != nil {
		logger.Error("failed to publish event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("aggregate_id", event.AggregateID),
			zap.Error(err))
	}
}

// sortByTimestamp orders events from several aggregates by creation time.
// Equal timestamps fall back to aggregate id and then version, so the order
// is total and per-aggregate version order always holds.
func sortByTimestamp(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AggregateID != b.AggregateID {
			return a.AggregateID < b.AggregateID
		}
		return a.Version < b.Version
	})
}
