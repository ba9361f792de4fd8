package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OriD-19/vendly-backend/internal/domain/inventory"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/readmodel"
	"go.uber.org/zap"
)

// Projector folds stored events into the order and inventory read models.
// Delivery is at least once: an order event whose version is not newer than
// the projected order is skipped, and so are its stock effects.
type Projector struct {
	mu        sync.Mutex
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewProjector(readStore store.ReadStoreInterface, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{readStore: readStore, logger: logger.Named("projector")}
}

// HandleEvent is the Kafka consumer entry point; value is a JSON store.Event.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return p.Project(ctx, event)
}

// Publish lets the projector stand in for a broker: an event store wired
// with it projects every appended event synchronously.
func (p *Projector) Publish(ctx context.Context, key string, event any) error {
	ev, ok := event.(store.Event)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return p.Project(ctx, ev)
}

// Project applies one event to the read models.
func (p *Projector) Project(ctx context.Context, event store.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("projecting event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.Int("version", event.Version))

	switch event.AggregateType {
	case order.AggregateType:
		return p.handleOrderEvent(event)
	case inventory.AggregateType:
		return p.handleInventoryEvent(event)
	}
	return nil
}

func (p *Projector) handleOrderEvent(event store.Event) error {
	if event.EventType == order.EventOrderPlaced {
		return p.orderPlaced(event)
	}

	current, ok, err := p.readStore.Get(readmodel.CollectionOrders, event.AggregateID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s for unknown order %s", event.EventType, event.AggregateID)
	}
	rm := current.(*readmodel.OrderReadModel)
	if event.Version <= rm.Version {
		return nil
	}

	var stock []store.Write
	switch event.EventType {
	case order.EventOrderConfirmed:
		var e order.OrderConfirmed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		rm.Status = string(order.StatusConfirmed)
		rm.UpdatedAt = e.ConfirmedAt

	case order.EventOrderShipped:
		var e order.OrderShipped
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		rm.Status = string(order.StatusShipped)
		rm.ShippedAt = &e.ShippedAt
		rm.UpdatedAt = e.ShippedAt
		if stock, err = p.adjustStock(e.Items, e.ShippedAt, 0, -1); err != nil {
			return err
		}

	case order.EventOrderDelivered:
		var e order.OrderDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		rm.Status = string(order.StatusDelivered)
		rm.DeliveredAt = &e.DeliveredAt
		rm.UpdatedAt = e.DeliveredAt

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		rm.Status = string(order.StatusCancelled)
		rm.CancelReason = e.Reason
		rm.CancelledAt = &e.CancelledAt
		rm.UpdatedAt = e.CancelledAt
		if stock, err = p.adjustStock(e.Items, e.CancelledAt, 1, -1); err != nil {
			return err
		}

	default:
		p.logger.Warn("unknown order event", zap.String("event_type", event.EventType))
		return nil
	}

	rm.Version = event.Version
	return p.readStore.SetMany(withOrder(stock, rm))
}

func (p *Projector) orderPlaced(event store.Event) error {
	if _, ok, err := p.readStore.Get(readmodel.CollectionOrders, event.AggregateID); err != nil {
		return err
	} else if ok {
		return nil
	}

	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}

	items := make([]readmodel.OrderItemReadModel, len(e.Items))
	for i, item := range e.Items {
		items[i] = readmodel.OrderItemReadModel{
			ProductID: item.ProductID,
			StoreID:   item.StoreID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	rm := &readmodel.OrderReadModel{
		ID:         e.OrderID,
		Number:     e.Number,
		CustomerID: e.CustomerID,
		Items:      items,
		Total:      e.Total,
		Status:     string(order.StatusPending),
		Shipping: readmodel.ShippingReadModel{
			Address:    e.Shipping.Address,
			City:       e.Shipping.City,
			PostalCode: e.Shipping.PostalCode,
			Country:    e.Shipping.Country,
		},
		CreatedAt: e.PlacedAt,
		UpdatedAt: e.PlacedAt,
		Version:   event.Version,
	}
	stock, err := p.adjustStock(e.Items, e.PlacedAt, -1, 1)
	if err != nil {
		return err
	}
	return p.readStore.SetMany(withOrder(stock, rm))
}

// withOrder appends the order write to its stock writes. The order goes in
// the same batch so a failed write never leaves stock moved for a version
// the projector has not recorded.
func withOrder(stock []store.Write, rm *readmodel.OrderReadModel) []store.Write {
	return append(stock, store.Write{Collection: readmodel.CollectionOrders, ID: rm.ID, Data: rm})
}

func (p *Projector) handleInventoryEvent(event store.Event) error {
	if event.EventType != inventory.EventStockAdded {
		return nil
	}
	var e inventory.StockAdded
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}

	inv, err := p.inventoryEntry(e.ProductID)
	if err != nil {
		return err
	}
	if event.Version <= inv.Version {
		return nil
	}
	if inv.StoreID == "" {
		inv.StoreID = e.StoreID
	}
	inv.Available += e.Quantity
	inv.Version = event.Version
	inv.UpdatedAt = e.AddedAt
	return p.readStore.Set(readmodel.CollectionInventory, inv.ProductID, inv)
}

// adjustStock computes the inventory writes that move each line's quantity by
// the given signs. Order events may reach the projector before the
// StockAdded that backs them, so a missing entry is created and the totals
// converge once it arrives.
func (p *Projector) adjustStock(items []order.LineItem, at time.Time, availableSign, reservedSign int) ([]store.Write, error) {
	entries := make(map[string]*readmodel.InventoryReadModel)
	var ids []string
	for _, item := range items {
		inv, ok := entries[item.ProductID]
		if !ok {
			var err error
			if inv, err = p.inventoryEntry(item.ProductID); err != nil {
				return nil, err
			}
			entries[item.ProductID] = inv
			ids = append(ids, item.ProductID)
		}
		if inv.StoreID == "" {
			inv.StoreID = item.StoreID
		}
		inv.Available += availableSign * item.Quantity
		inv.Reserved += reservedSign * item.Quantity
		inv.UpdatedAt = at
	}

	writes := make([]store.Write, 0, len(ids)+1)
	for _, id := range ids {
		writes = append(writes, store.Write{Collection: readmodel.CollectionInventory, ID: id, Data: entries[id]})
	}
	return writes, nil
}

func (p *Projector) inventoryEntry(productID string) (*readmodel.InventoryReadModel, error) {
	current, ok, err := p.readStore.Get(readmodel.CollectionInventory, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &readmodel.InventoryReadModel{ProductID: productID}, nil
	}
	return current.(*readmodel.InventoryReadModel), nil
}
