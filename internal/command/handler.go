package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OriD-19/vendly-backend/internal/domain/inventory"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/domain/reservation"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/notification"
	"github.com/OriD-19/vendly-backend/internal/platform/keylock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrMissingCustomer = errors.New("customer id is required")

// notificationKinds maps the status an order reaches to what customers hear.
var notificationKinds = map[order.Status]notification.Kind{
	order.StatusPending:   notification.KindOrderCreated,
	order.StatusConfirmed: notification.KindOrderConfirmed,
	order.StatusShipped:   notification.KindOrderShipped,
	order.StatusDelivered: notification.KindOrderDelivered,
	order.StatusCancelled: notification.KindOrderCancelled,
}

// Handler is the write side: it creates orders against the stock ledger and
// drives them through the state machine.
type Handler struct {
	eventStore  store.EventStoreInterface
	orderSvc    *order.Service
	ledger      *inventory.Ledger
	coordinator *reservation.Coordinator
	emitter     notification.Emitter
	orderLocks  *keylock.KeyLock
	keyLocks    *keylock.KeyLock
	idempotency *idempotencyIndex
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewHandler(
	eventStore store.EventStoreInterface,
	orderSvc *order.Service,
	ledger *inventory.Ledger,
	emitter notification.Emitter,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = notification.NopEmitter{}
	}
	return &Handler{
		eventStore:  eventStore,
		orderSvc:    orderSvc,
		ledger:      ledger,
		coordinator: reservation.NewCoordinator(ledger, logger),
		emitter:     emitter,
		orderLocks:  keylock.New(),
		keyLocks:    keylock.New(),
		idempotency: newIdempotencyIndex(),
		logger:      logger.Named("command"),
		tracer:      otel.Tracer("command"),
	}
}

// attributeStores copies items with each StoreID taken from the ledger entry.
// The client's value is never trusted for sales attribution.
func (h *Handler) attributeStores(items []order.LineItem) []order.LineItem {
	out := make([]order.LineItem, len(items))
	for i, item := range items {
		out[i] = item
		if stock, err := h.ledger.Get(item.ProductID); err == nil {
			out[i].StoreID = stock.StoreID
		}
	}
	return out
}

// CreateOrder reserves stock for every line and records a pending order.
// Either every line is claimed and the order exists, or nothing changed.
// A repeated idempotency key from the same customer returns the first order.
func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (o *order.Order, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "Handler.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", cmd.CustomerID),
		attribute.Int("order.items", len(cmd.Items)),
	))
	defer func() { endSpan(span, err) }()

	if cmd.CustomerID == "" {
		return nil, ErrMissingCustomer
	}
	if err := order.ValidateItems(cmd.Items); err != nil {
		return nil, err
	}

	var scoped string
	if cmd.IdempotencyKey != "" {
		scoped = scopeKey(cmd.CustomerID, cmd.IdempotencyKey)
		unlock := h.keyLocks.Lock(scoped)
		defer unlock()

		if orderID, ok := h.idempotency.get(scoped); ok {
			span.SetAttributes(attribute.Bool("idempotent.replay", true))
			return h.orderSvc.Load(ctx, orderID)
		}
	}

	// Past this point the request runs to completion or full unwind.
	ctx = context.WithoutCancel(ctx)

	attemptID := uuid.New().String()
	res, err := h.coordinator.Reserve(ctx, attemptID, reservation.ClaimsOf(cmd.Items))
	if err != nil {
		return nil, err
	}

	o, err = h.orderSvc.Place(ctx, order.PlaceParams{
		CustomerID:     cmd.CustomerID,
		Items:          h.attributeStores(cmd.Items),
		Shipping:       cmd.Shipping,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		if relErr := h.coordinator.Release(res); relErr != nil {
			h.logger.Error("failed to release reservation after append failure",
				zap.String("attempt_id", attemptID),
				zap.Error(relErr))
		}
		return nil, err
	}

	if scoped != "" {
		h.idempotency.put(scoped, o.ID)
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	h.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("customer_id", o.CustomerID),
		zap.Int("total", o.Total))
	h.notify(ctx, o)
	return o, nil
}

// Transition applies ev to the order.
func (h *Handler) Transition(ctx context.Context, orderID string, ev order.Event) (*order.Order, error) {
	return h.transition(ctx, orderID, ev, "")
}

// CancelOrder cancels the order, recording the reason.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, order.EventCancel, cmd.Reason)
}

func (h *Handler) transition(ctx context.Context, orderID string, ev order.Event, reason string) (o *order.Order, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "Handler.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.event", string(ev)),
	))
	defer func() { endSpan(span, err) }()

	unlock := h.orderLocks.Lock(orderID)
	defer unlock()

	o, err = h.orderSvc.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	next, noop, err := o.Plan(ev)
	if err != nil {
		return nil, err
	}
	if noop {
		span.SetAttributes(attribute.Bool("transition.noop", true))
		return o, nil
	}

	ctx = context.WithoutCancel(ctx)

	if err := h.orderSvc.Record(ctx, o, ev, reason); err != nil {
		return nil, err
	}

	h.applyStockEffect(o, next)

	h.logger.Info("order transitioned",
		zap.String("order_id", o.ID),
		zap.String("event", string(ev)),
		zap.String("status", string(o.Status)),
		zap.Int("version", o.Version))
	h.notify(ctx, o)
	return o, nil
}

// applyStockEffect releases or commits the order's claims. The claims were
// taken at creation and only this path gives them back, so a failure here
// means the ledger and the event stream disagree.
func (h *Handler) applyStockEffect(o *order.Order, next order.Status) {
	res := &reservation.Reservation{AttemptID: o.ID, Claims: reservation.ClaimsOf(o.Items)}

	var err error
	switch next {
	case order.StatusCancelled:
		err = h.coordinator.Release(res)
	case order.StatusShipped:
		err = h.coordinator.Commit(res)
	default:
		return
	}
	if err != nil {
		h.logger.Error("stock ledger out of sync with order",
			zap.String("order_id", o.ID),
			zap.String("status", string(next)),
			zap.Error(err))
	}
}

// notify emits the notification for the order's current status. Emitter
// failures and panics never reach the caller.
func (h *Handler) notify(ctx context.Context, o *order.Order) {
	kind, ok := notificationKinds[o.Status]
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("notification emitter panicked",
				zap.String("order_id", o.ID),
				zap.String("kind", string(kind)),
				zap.Any("panic", r))
		}
	}()

	h.emitter.Emit(ctx, kind, o.ID, NotificationPayload{
		Number:     o.Number,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		Total:      o.Total,
	})
}

// NotificationPayload is what subscribers get with every order notification.
type NotificationPayload struct {
	Number     string `json:"number"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
}

// GetOrder returns the current state of an order.
func (h *Handler) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.orderSvc.Load(ctx, orderID)
}

// Restock adds stock for a product, creating its ledger entry if needed.
func (h *Handler) Restock(ctx context.Context, cmd Restock) (inventory.Stock, error) {
	if err := ctx.Err(); err != nil {
		return inventory.Stock{}, err
	}
	return h.ledger.Restock(context.WithoutCancel(ctx), cmd.ProductID, cmd.StoreID, cmd.Quantity)
}

// GetStock returns the ledger entry of a product.
func (h *Handler) GetStock(productID string) (inventory.Stock, error) {
	return h.ledger.Get(productID)
}

// Recover rebuilds the ledger and the idempotency index from the event
// store. It must run once, before serving requests.
func (h *Handler) Recover(ctx context.Context) error {
	events, err := h.eventStore.GetAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	var orders int
	for _, e := range events {
		if err := h.ledger.Apply(e); err != nil {
			return fmt.Errorf("failed to replay event %s: %w", e.ID, err)
		}
		if e.EventType != order.EventOrderPlaced {
			continue
		}
		orders++

		var placed order.OrderPlaced
		if err := json.Unmarshal(e.Data, &placed); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", e.EventType, e.ID, err)
		}
		if placed.IdempotencyKey != "" {
			h.idempotency.put(scopeKey(placed.CustomerID, placed.IdempotencyKey), placed.OrderID)
		}
	}

	h.logger.Info("recovered state from event store",
		zap.Int("events", len(events)),
		zap.Int("orders", orders),
		zap.Int("products", len(h.ledger.List())))
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
