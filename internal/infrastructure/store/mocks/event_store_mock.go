package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	sequence  []store.Event
	snapshots map[string]*store.Snapshot

	// For tracking calls in tests
	AppendCalls       []AppendCall
	SaveSnapshotCalls []SaveSnapshotCall
	AppendErr         error
	// AppendErrFor fails only appends of the given event type
	AppendErrFor map[string]error
	GetEventsErr error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

// SaveSnapshotCall records parameters passed to SaveSnapshot
type SaveSnapshotCall struct {
	Snapshot *store.Snapshot
}

var _ store.EventStoreInterface = (*MockEventStore)(nil)

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:       make(map[string][]store.Event),
		snapshots:    make(map[string]*store.Snapshot),
		AppendCalls:  make([]AppendCall, 0),
		AppendErrFor: make(map[string]error),
	}
}

// Append stores an event in memory
func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	if err := m.AppendErrFor[eventType]; err != nil {
		return nil, err
	}

	event, err := m.addLocked(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (m *MockEventStore) addLocked(aggregateID, aggregateType, eventType string, data any) (store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}

	version := len(m.events[aggregateID]) + 1
	if n := len(m.events[aggregateID]); n > 0 {
		version = m.events[aggregateID][n-1].Version + 1
	}
	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}

	m.events[aggregateID] = append(m.events[aggregateID], event)
	m.sequence = append(m.sequence, event)
	return event, nil
}

// GetEvents returns events for an aggregate
func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	return m.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns events for an aggregate newer than fromVersion
func (m *MockEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	var out []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllEvents returns all events in append order
func (m *MockEventStore) GetAllEvents(ctx context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	return append([]store.Event(nil), m.sequence...), nil
}

// SaveSnapshot records and stores a snapshot
func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveSnapshotCalls = append(m.SaveSnapshotCalls, SaveSnapshotCall{Snapshot: snapshot})
	m.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot returns the stored snapshot, or nil
func (m *MockEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[aggregateID], nil
}

// SetSnapshot sets a snapshot directly for testing
func (m *MockEventStore) SetSnapshot(snapshot *store.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.AggregateID] = snapshot
}

// SetEvents sets events directly for testing
func (m *MockEventStore) SetEvents(aggregateID string, events []store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[aggregateID] = events
	m.sequence = append(m.sequence, events...)
}

// AddEvent adds a single event for testing without recording an Append call
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.addLocked(aggregateID, aggregateType, eventType, data)
	return err
}

// EventTypes returns the event types appended for an aggregate, oldest first
func (m *MockEventStore) EventTypes(aggregateID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.events[aggregateID]))
	for _, e := range m.events[aggregateID] {
		types = append(types, e.EventType)
	}
	return types
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.sequence = nil
	m.snapshots = make(map[string]*store.Snapshot)
	m.AppendCalls = make([]AppendCall, 0)
	m.SaveSnapshotCalls = nil
	m.AppendErr = nil
	m.AppendErrFor = make(map[string]error)
	m.GetEventsErr = nil
}
