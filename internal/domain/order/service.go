package order

import (
	"context"
	"fmt"
	"time"

	"github.com/OriD-19/vendly-backend/internal/domain/aggregate"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceParams describes a new order. Items must already be validated.
type PlaceParams struct {
	CustomerID     string
	Items          []LineItem
	Shipping       Shipping
	IdempotencyKey string
}

// Service persists orders as event streams. It does not lock; callers
// serialize work on one order.
type Service struct {
	eventStore        store.EventStoreInterface
	snapshotThreshold int
	logger            *zap.Logger
	now               func() time.Time
}

func NewService(es store.EventStoreInterface, snapshotThreshold int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		eventStore:        es,
		snapshotThreshold: snapshotThreshold,
		logger:            logger.Named("order"),
		now:               time.Now,
	}
}

// ValidateItems rejects empty orders and malformed lines.
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for i, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidLineItem, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity %d", ErrInvalidLineItem, i, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price %d", ErrInvalidLineItem, i, item.UnitPrice)
		}
	}
	return nil
}

// Place appends OrderPlaced for a new pending order. The total is fixed here.
func (s *Service) Place(ctx context.Context, p PlaceParams) (*Order, error) {
	if err := ValidateItems(p.Items); err != nil {
		return nil, err
	}

	orderID := uuid.New().String()
	now := s.now().UTC()
	items := append([]LineItem(nil), p.Items...)

	event := OrderPlaced{
		OrderID:        orderID,
		Number:         NewNumber(now),
		CustomerID:     p.CustomerID,
		Items:          items,
		Total:          ComputeTotal(items),
		Shipping:       p.Shipping,
		IdempotencyKey: p.IdempotencyKey,
		PlacedAt:       now,
	}

	stored, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderPlaced, event)
	if err != nil {
		return nil, fmt.Errorf("failed to append %s: %w", EventOrderPlaced, err)
	}

	order := &Order{}
	if err := order.ApplyEvent(*stored); err != nil {
		return nil, err
	}
	s.maybeSnapshot(ctx, order)
	return order, nil
}

// Load rebuilds an order from its snapshot and events.
func (s *Service) Load(ctx context.Context, orderID string) (*Order, error) {
	order, found, err := aggregate.LoadAggregate(ctx, s.eventStore, orderID, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// Record appends the stored event for ev and applies it to o.
// The transition must already have been checked with Plan.
func (s *Service) Record(ctx context.Context, o *Order, ev Event, reason string) error {
	eventType, ok := eventTypes[ev]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}

	now := s.now().UTC()
	var data any
	switch ev {
	case EventConfirm:
		data = OrderConfirmed{OrderID: o.ID, ConfirmedAt: now}
	case EventShip:
		data = OrderShipped{OrderID: o.ID, Items: o.Items, ShippedAt: now}
	case EventDeliver:
		data = OrderDelivered{OrderID: o.ID, DeliveredAt: now}
	case EventCancel:
		data = OrderCancelled{OrderID: o.ID, Items: o.Items, Reason: reason, CancelledAt: now}
	}

	stored, err := s.eventStore.Append(ctx, o.ID, AggregateType, eventType, data)
	if err != nil {
		return fmt.Errorf("failed to append %s: %w", eventType, err)
	}
	if err := o.ApplyEvent(*stored); err != nil {
		return err
	}
	s.maybeSnapshot(ctx, o)
	return nil
}

func (s *Service) maybeSnapshot(ctx context.Context, o *Order) {
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, o, AggregateType, s.snapshotThreshold); err != nil {
		s.logger.Warn("failed to create snapshot",
			zap.String("order_id", o.ID),
			zap.Int("version", o.Version),
			zap.Error(err))
	}
}
