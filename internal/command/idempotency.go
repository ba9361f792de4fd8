package command

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// scopeKey binds an idempotency key to its customer so two customers can
// reuse the same token.
func scopeKey(customerID, key string) string {
	sum := blake2b.Sum256([]byte(customerID + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// idempotencyIndex maps scoped keys to the order they created.
type idempotencyIndex struct {
	mu     sync.RWMutex
	orders map[string]string
}

func newIdempotencyIndex() *idempotencyIndex {
	return &idempotencyIndex{orders: make(map[string]string)}
}

func (ix *idempotencyIndex) get(scoped string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.orders[scoped]
	return id, ok
}

func (ix *idempotencyIndex) put(scoped, orderID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.orders[scoped] = orderID
}
