package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher matches kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaEmitter publishes notifications keyed by order id. Pair it with an
// async producer so Emit returns before the broker acks.
type KafkaEmitter struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewKafkaEmitter(publisher Publisher, logger *zap.Logger) *KafkaEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaEmitter{
		publisher: publisher,
		logger:    logger.Named("notification"),
		now:       time.Now,
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, kind Kind, orderID string, payload any) {
	n := Notification{
		Kind:       kind,
		OrderID:    orderID,
		Payload:    payload,
		OccurredAt: e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, orderID, n); err != nil {
		e.logger.Error("failed to publish notification",
			zap.String("kind", string(kind)),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}
