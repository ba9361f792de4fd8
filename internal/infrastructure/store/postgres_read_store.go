package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OriD-19/vendly-backend/internal/readmodel"
)

const readModelSchema = `
CREATE TABLE IF NOT EXISTS read_models (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, id)
);`

// PostgresReadStore implements ReadStoreInterface using PostgreSQL.
// Every collection shares the read_models table; rows hold the JSON of the
// read model.
type PostgresReadStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db, timeout: 5 * time.Second}
}

// EnsureSchema creates the read_models table if it does not exist
func (rs *PostgresReadStore) EnsureSchema(ctx context.Context) error {
	if _, err := rs.db.ExecContext(ctx, readModelSchema); err != nil {
		return fmt.Errorf("failed to create read model schema: %w", err)
	}
	return nil
}

func (rs *PostgresReadStore) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rs.timeout)
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ctx, cancel := rs.context()
	defer cancel()
	return upsertReadModel(ctx, rs.db, collection, id, raw)
}

// SetMany stores every write in one transaction
func (rs *PostgresReadStore) SetMany(writes []Write) error {
	raws := make([][]byte, len(writes))
	for i, w := range writes {
		raw, err := json.Marshal(w.Data)
		if err != nil {
			return err
		}
		raws[i] = raw
	}

	ctx, cancel := rs.context()
	defer cancel()

	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, w := range writes {
		if err := upsertReadModel(ctx, tx, w.Collection, w.ID, raws[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertReadModel(ctx context.Context, db execer, collection, id string, raw []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO read_models (collection, id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, collection, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool, error) {
	ctx, cancel := rs.context()
	defer cancel()

	var raw []byte
	err := rs.db.QueryRowContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	v, err := readmodel.Decode(collection, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(collection string) ([]any, error) {
	ctx, cancel := rs.context()
	defer cancel()

	rows, err := rs.db.QueryContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 ORDER BY updated_at DESC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		v, err := readmodel.Decode(collection, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) error {
	ctx, cancel := rs.context()
	defer cancel()

	_, err := rs.db.ExecContext(ctx,
		`DELETE FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update modifies a read model using an update function.
// The row is locked with SELECT ... FOR UPDATE for the duration of updateFn.
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	ctx, cancel := rs.context()
	defer cancel()

	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock %s/%s: %w", collection, id, err)
	}

	current, err := readmodel.Decode(collection, raw)
	if err != nil {
		return false, err
	}
	updated, err := json.Marshal(updateFn(current))
	if err != nil {
		return false, err
	}
	if err := upsertReadModel(ctx, tx, collection, id, updated); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
