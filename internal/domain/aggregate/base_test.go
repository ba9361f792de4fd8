package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	ID      string `json:"id"`
	Count   int    `json:"count"`
	Version int    `json:"version"`
}

func (c *counter) GetID() string   { return c.ID }
func (c *counter) GetVersion() int { return c.Version }

func (c *counter) ApplyEvent(e store.Event) error {
	var data struct {
		By int `json:"by"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return err
	}
	c.ID = e.AggregateID
	c.Count += data.By
	c.Version = e.Version
	return nil
}

func newCounter() *counter { return &counter{} }

func TestLoadAggregate_NoData(t *testing.T) {
	es := mocks.NewMockEventStore()

	c, found, err := LoadAggregate(context.Background(), es, "c-1", newCounter)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Count)
}

func TestLoadAggregate_ReplaysEvents(t *testing.T) {
	es := mocks.NewMockEventStore()
	for i := 1; i <= 3; i++ {
		require.NoError(t, es.AddEvent("c-1", "Counter", "Incremented", map[string]int{"by": i}))
	}

	c, found, err := LoadAggregate(context.Background(), es, "c-1", newCounter)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 6, c.Count)
	assert.Equal(t, 3, c.Version)
}

func TestLoadAggregate_StartsFromSnapshot(t *testing.T) {
	es := mocks.NewMockEventStore()
	for i := 0; i < 4; i++ {
		require.NoError(t, es.AddEvent("c-1", "Counter", "Incremented", map[string]int{"by": 1}))
	}
	// the snapshot claims 100 at version 3, so only event 4 is replayed on top
	state, _ := json.Marshal(counter{ID: "c-1", Count: 100, Version: 3})
	es.SetSnapshot(&store.Snapshot{AggregateID: "c-1", Version: 3, State: state})

	c, found, err := LoadAggregate(context.Background(), es, "c-1", newCounter)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 101, c.Count)
	assert.Equal(t, 4, c.Version)
}

func TestLoadAggregate_PropagatesStoreError(t *testing.T) {
	es := mocks.NewMockEventStore()
	es.GetEventsErr = errors.New("db down")

	_, _, err := LoadAggregate(context.Background(), es, "c-1", newCounter)
	assert.ErrorContains(t, err, "db down")
}

func TestMaybeCreateSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		version   int
		threshold int
		want      bool
	}{
		{"below threshold", 9, 10, false},
		{"at threshold", 10, 10, true},
		{"multiple of threshold", 20, 10, true},
		{"disabled", 10, 0, false},
		{"zero version", 0, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es := mocks.NewMockEventStore()
			c := &counter{ID: "c-1", Count: 5, Version: tt.version}

			require.NoError(t, MaybeCreateSnapshot(context.Background(), es, c, "Counter", tt.threshold))

			if tt.want {
				require.Len(t, es.SaveSnapshotCalls, 1)
				snap := es.SaveSnapshotCalls[0].Snapshot
				assert.Equal(t, tt.version, snap.Version)
				assert.Equal(t, "Counter", snap.AggregateType)
			} else {
				assert.Empty(t, es.SaveSnapshotCalls)
			}
		})
	}
}
