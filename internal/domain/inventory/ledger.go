package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

const AggregateType = "Inventory"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidRelease    = errors.New("release exceeds reserved stock")
)

// Stock is a point-in-time copy of one product's entry.
type Stock struct {
	ProductID string    `json:"product_id"`
	StoreID   string    `json:"store_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	mu    sync.Mutex
	stock Stock
}

// Ledger holds every product's stock in memory. Each entry has its own lock;
// the map lock only guards lookup and creation, so operations on different
// products never contend.
type Ledger struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	eventStore store.EventStoreInterface
	logger     *zap.Logger
	now        func() time.Time
}

func NewLedger(es store.EventStoreInterface, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		entries:    make(map[string]*entry),
		eventStore: es,
		logger:     logger.Named("ledger"),
		now:        time.Now,
	}
}

func (l *Ledger) lookup(productID string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[productID]
	return e, ok
}

func (l *Ledger) getOrCreate(productID, storeID string) *entry {
	if e, ok := l.lookup(productID); ok {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[productID]; ok {
		return e
	}
	e := &entry{stock: Stock{ProductID: productID, StoreID: storeID}}
	l.entries[productID] = e
	return e
}

// withEntry runs fn with the product's entry locked.
func (l *Ledger) withEntry(productID string, qty int, fn func(s *Stock) error) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	e, ok := l.lookup(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(&e.stock); err != nil {
		return err
	}
	e.stock.Version++
	e.stock.UpdatedAt = l.now().UTC()
	return nil
}

// TryReserve moves qty from available to reserved, or fails with
// ErrInsufficientStock leaving the entry untouched.
func (l *Ledger) TryReserve(productID string, qty int) error {
	return l.withEntry(productID, qty, func(s *Stock) error {
		if s.Available < qty {
			return ErrInsufficientStock
		}
		s.Available -= qty
		s.Reserved += qty
		return nil
	})
}

// Release returns qty of reserved stock to available.
func (l *Ledger) Release(productID string, qty int) error {
	return l.withEntry(productID, qty, func(s *Stock) error {
		if s.Reserved < qty {
			return fmt.Errorf("%w: %s reserved %d, release %d", ErrInvalidRelease, productID, s.Reserved, qty)
		}
		s.Reserved -= qty
		s.Available += qty
		return nil
	})
}

// Commit consumes qty of reserved stock permanently.
func (l *Ledger) Commit(productID string, qty int) error {
	return l.withEntry(productID, qty, func(s *Stock) error {
		if s.Reserved < qty {
			return fmt.Errorf("%w: %s reserved %d, commit %d", ErrInvalidRelease, productID, s.Reserved, qty)
		}
		s.Reserved -= qty
		return nil
	})
}

// Restock journals StockAdded and then grows available stock, creating the
// entry on first use.
func (l *Ledger) Restock(ctx context.Context, productID, storeID string, qty int) (Stock, error) {
	if qty < 1 {
		return Stock{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if productID == "" {
		return Stock{}, fmt.Errorf("%w: empty product id", ErrProductNotFound)
	}

	event := StockAdded{
		ProductID: productID,
		StoreID:   storeID,
		Quantity:  qty,
		AddedAt:   l.now().UTC(),
	}
	if _, err := l.eventStore.Append(ctx, productID, AggregateType, EventStockAdded, event); err != nil {
		return Stock{}, fmt.Errorf("failed to append %s: %w", EventStockAdded, err)
	}

	stock := l.add(event)
	l.logger.Info("stock added",
		zap.String("product_id", productID),
		zap.Int("quantity", qty),
		zap.Int("available", stock.Available))
	return stock, nil
}

func (l *Ledger) add(event StockAdded) Stock {
	e := l.getOrCreate(event.ProductID, event.StoreID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stock.StoreID == "" {
		e.stock.StoreID = event.StoreID
	}
	e.stock.Available += event.Quantity
	e.stock.Version++
	e.stock.UpdatedAt = event.AddedAt
	return e.stock
}

// Get returns a copy of the product's entry.
func (l *Ledger) Get(productID string) (Stock, error) {
	e, ok := l.lookup(productID)
	if !ok {
		return Stock{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stock, nil
}

// List returns every entry ordered by product id.
func (l *Ledger) List() []Stock {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]Stock, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.stock)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Apply replays one stored event into the ledger. Events that do not touch
// stock are ignored.
func (l *Ledger) Apply(event store.Event) error {
	switch event.EventType {
	case EventStockAdded:
		var data StockAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		l.add(data)
		return nil
	case order.EventOrderPlaced:
		return l.applyLines(event, l.TryReserve)
	case order.EventOrderCancelled:
		return l.applyLines(event, l.Release)
	case order.EventOrderShipped:
		return l.applyLines(event, l.Commit)
	}
	return nil
}

func (l *Ledger) applyLines(event store.Event, op func(productID string, qty int) error) error {
	var data orderLines
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}
	for _, item := range data.Items {
		if err := op(item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("replay %s of %s: %w", event.EventType, event.AggregateID, err)
		}
	}
	return nil
}
