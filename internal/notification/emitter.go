package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind names a customer-facing notification.
type Kind string

const (
	KindOrderCreated   Kind = "order.created"
	KindOrderConfirmed Kind = "order.confirmed"
	KindOrderShipped   Kind = "order.shipped"
	KindOrderDelivered Kind = "order.delivered"
	KindOrderCancelled Kind = "order.cancelled"
)

// Notification is the message put on the notification topic.
type Notification struct {
	Kind       Kind      `json:"kind"`
	OrderID    string    `json:"order_id"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter fires notifications. Emit must not block on delivery and reports
// nothing back; delivery problems are the emitter's to log.
type Emitter interface {
	Emit(ctx context.Context, kind Kind, orderID string, payload any)
}

// NopEmitter drops everything.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Kind, string, any) {}

// LogEmitter writes notifications to the log.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.Named("notification")}
}

func (e *LogEmitter) Emit(ctx context.Context, kind Kind, orderID string, payload any) {
	e.logger.Info("notification",
		zap.String("kind", string(kind)),
		zap.String("order_id", orderID),
		zap.Any("payload", payload))
}

// MultiEmitter fans out to every emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, kind Kind, orderID string, payload any) {
	for _, e := range m {
		e.Emit(ctx, kind, orderID, payload)
	}
}
