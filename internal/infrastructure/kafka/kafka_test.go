package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	messages []kafka.Message
	errs     []error
	cancel   context.CancelFunc
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducer_PublishKeysByAggregate(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, zap.NewNop())

	err := p.Publish(context.Background(), "order-1", map[string]string{"event_type": "OrderPlaced"})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	assert.Equal(t, "order-1", string(w.messages[0].Key))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, "OrderPlaced", decoded["event_type"])
}

func TestProducer_PublishReturnsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("no leader")}
	p := NewProducerWithWriter(w, nil)

	err := p.Publish(context.Background(), "order-1", "x")
	assert.EqualError(t, err, "no leader")
}

func TestProducer_PublishRejectsUnmarshalable(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil)

	err := p.Publish(context.Background(), "order-1", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, w.messages)
}

func TestConsumer_HandlesMessagesAndLogsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		errs: []error{errors.New("transient")},
		messages: []kafka.Message{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		},
		cancel: cancel,
	}
	core, logs := observer.New(zap.ErrorLevel)
	c := NewConsumerWithReader(reader, zap.New(core))

	var seen []string
	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		seen = append(seen, string(key))
		if string(key) == "b" {
			return errors.New("bad payload")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, 1, logs.FilterMessage("error reading message").Len())
	assert.Equal(t, 1, logs.FilterMessage("error handling message").Len())
}

func TestHeaderCarrier(t *testing.T) {
	var headers []kafka.Header
	c := HeaderCarrier{Headers: &headers}

	c.Set("traceparent", "v1")
	c.Set("traceparent", "v2")
	c.Set("tracestate", "s")

	assert.Equal(t, "v2", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())
	assert.Len(t, headers, 2)
}
