package order

import "time"

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
)

type OrderPlaced struct {
	OrderID        string     `json:"order_id"`
	Number         string     `json:"number"`
	CustomerID     string     `json:"customer_id"`
	Items          []LineItem `json:"items"`
	Total          int        `json:"total"`
	Shipping       Shipping   `json:"shipping"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	PlacedAt       time.Time  `json:"placed_at"`
}

type OrderConfirmed struct {
	OrderID     string    `json:"order_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// OrderShipped carries the items so stock commits replay without the order.
type OrderShipped struct {
	OrderID   string     `json:"order_id"`
	Items     []LineItem `json:"items"`
	ShippedAt time.Time  `json:"shipped_at"`
}

type OrderDelivered struct {
	OrderID     string    `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderCancelled carries the items so stock releases replay without the order.
type OrderCancelled struct {
	OrderID     string     `json:"order_id"`
	Items       []LineItem `json:"items"`
	Reason      string     `json:"reason,omitempty"`
	CancelledAt time.Time  `json:"cancelled_at"`
}

// eventTypes maps a state machine event to the stored event type it produces.
var eventTypes = map[Event]string{
	EventConfirm: EventOrderConfirmed,
	EventShip:    EventOrderShipped,
	EventDeliver: EventOrderDelivered,
	EventCancel:  EventOrderCancelled,
}
