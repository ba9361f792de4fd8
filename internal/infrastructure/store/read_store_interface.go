package store

// ReadStoreInterface defines the interface for read model storage.
// Values are copied on the way in and out, so callers never share state with
// the store.
type ReadStoreInterface interface {
	// Set stores a read model
	Set(collection, id string, data any) error

	// SetMany stores every write or none of them
	SetMany(writes []Write) error

	// Get retrieves a read model by id
	Get(collection, id string) (any, bool, error)

	// GetAll retrieves all items in a collection
	GetAll(collection string) ([]any, error)

	// Delete removes a read model
	Delete(collection, id string) error

	// Update modifies a read model using an update function.
	// It reports false when the id does not exist.
	Update(collection, id string, updateFn func(current any) any) (bool, error)
}

// Write is one read model stored by SetMany.
type Write struct {
	Collection string
	ID         string
	Data       any
}
