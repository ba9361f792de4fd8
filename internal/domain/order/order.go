package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Event is a state machine input issued by a caller.
type Event string

const (
	EventConfirm Event = "confirm"
	EventShip    Event = "ship"
	EventDeliver Event = "deliver"
	EventCancel  Event = "cancel"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must have at least one item")
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrUnknownEvent      = errors.New("unknown order event")
	ErrInvalidLineItem   = errors.New("invalid line item")
)

// transitions is the whole state machine: current status -> event -> next status.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventConfirm: StatusConfirmed,
		EventCancel:  StatusCancelled,
	},
	StatusConfirmed: {
		EventShip:   StatusShipped,
		EventCancel: StatusCancelled,
	},
	StatusShipped: {
		EventDeliver: StatusDelivered,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// targets maps each event to the status it leads to.
var targets = map[Event]Status{
	EventConfirm: StatusConfirmed,
	EventShip:    StatusShipped,
	EventDeliver: StatusDelivered,
	EventCancel:  StatusCancelled,
}

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	ev := Event(s)
	if _, ok := targets[ev]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
	return ev, nil
}

// IsTerminal reports whether no event can leave the status.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// TransitionError names the status and event of a rejected transition.
type TransitionError struct {
	Status Status
	Event  Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order in status %s", e.Event, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type LineItem struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"` // minor units
}

func (li LineItem) Subtotal() int {
	return li.Quantity * li.UnitPrice
}

type Shipping struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Order struct {
	ID             string     `json:"id"`
	Number         string     `json:"number"`
	CustomerID     string     `json:"customer_id"`
	Items          []LineItem `json:"items"`
	Total          int        `json:"total"`
	Status         Status     `json:"status"`
	Shipping       Shipping   `json:"shipping"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	Version        int        `json:"version"`
}

// Aggregate interface implementation
func (o *Order) GetID() string   { return o.ID }
func (o *Order) GetVersion() int { return o.Version }

// Plan checks ev against the transition table. noop is true when the order
// already sits in the status ev leads to.
func (o *Order) Plan(ev Event) (next Status, noop bool, err error) {
	target, ok := targets[ev]
	if !ok {
		return "", false, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	if o.Status == target {
		return target, true, nil
	}
	next, ok = transitions[o.Status][ev]
	if !ok {
		return "", false, &TransitionError{Status: o.Status, Event: ev}
	}
	return next, false, nil
}

// Clone returns a deep copy so callers cannot alias the line items.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	return &cp
}

// ComputeTotal sums quantity × unit price over the items.
func ComputeTotal(items []LineItem) int {
	var total int
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.Number = data.Number
		o.CustomerID = data.CustomerID
		o.Items = data.Items
		o.Total = data.Total
		o.Shipping = data.Shipping
		o.IdempotencyKey = data.IdempotencyKey
		o.Status = StatusPending
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderConfirmed:
		var data OrderConfirmed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusConfirmed
		o.UpdatedAt = data.ConfirmedAt
	case EventOrderShipped:
		var data OrderShipped
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusShipped
		o.ShippedAt = &data.ShippedAt
		o.UpdatedAt = data.ShippedAt
	case EventOrderDelivered:
		var data OrderDelivered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusDelivered
		o.DeliveredAt = &data.DeliveredAt
		o.UpdatedAt = data.DeliveredAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.CancelReason = data.Reason
		o.CancelledAt = &data.CancelledAt
		o.UpdatedAt = data.CancelledAt
	default:
		return fmt.Errorf("unknown order event type %q", event.EventType)
	}
	o.Version = event.Version
	return nil
}
