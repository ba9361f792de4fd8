package store

import (
	"encoding/json"
	"sync"

	"github.com/OriD-19/vendly-backend/internal/readmodel"
)

// ReadStore is an in-memory read model store
type ReadStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // collection -> id -> JSON
}

func NewReadStore() *ReadStore {
	return &ReadStore{
		data: make(map[string]map[string][]byte),
	}
}

// Set stores a read model
func (rs *ReadStore) Set(collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.setLocked(collection, id, raw)
	return nil
}

// SetMany stores every write under one lock
func (rs *ReadStore) SetMany(writes []Write) error {
	raws := make([][]byte, len(writes))
	for i, w := range writes {
		raw, err := json.Marshal(w.Data)
		if err != nil {
			return err
		}
		raws[i] = raw
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i, w := range writes {
		rs.setLocked(w.Collection, w.ID, raws[i])
	}
	return nil
}

func (rs *ReadStore) setLocked(collection, id string, raw []byte) {
	if rs.data[collection] == nil {
		rs.data[collection] = make(map[string][]byte)
	}
	rs.data[collection][id] = raw
}

// Get retrieves a read model by id
func (rs *ReadStore) Get(collection, id string) (any, bool, error) {
	rs.mu.RLock()
	raw, ok := rs.data[collection][id]
	rs.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	v, err := readmodel.Decode(collection, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetAll retrieves all items in a collection
func (rs *ReadStore) GetAll(collection string) ([]any, error) {
	rs.mu.RLock()
	raws := make([][]byte, 0, len(rs.data[collection]))
	for _, raw := range rs.data[collection] {
		raws = append(raws, raw)
	}
	rs.mu.RUnlock()

	items := make([]any, 0, len(raws))
	for _, raw := range raws {
		v, err := readmodel.Decode(collection, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// Delete removes a read model
func (rs *ReadStore) Delete(collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data[collection] != nil {
		delete(rs.data[collection], id)
	}
	return nil
}

// Update modifies a read model using an update function
func (rs *ReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	raw, ok := rs.data[collection][id]
	if !ok {
		return false, nil
	}
	current, err := readmodel.Decode(collection, raw)
	if err != nil {
		return false, err
	}
	updated, err := json.Marshal(updateFn(current))
	if err != nil {
		return false, err
	}
	rs.setLocked(collection, id, updated)
	return true, nil
}
