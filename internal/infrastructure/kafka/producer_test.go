package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-pos/internal/domain/order"
)

type mockWriter struct {
	Messages   []kafka.Message
	Err        error
	CloseCalls int
}

func (w *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.Messages = append(w.Messages, msgs...)
	return w.Err
}

func (w *mockWriter) Close() error {
	w.CloseCalls++
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// ============================================
// Publish Tests
// ============================================

func TestPublish_OrderEvent(t *testing.T) {
	w := &mockWriter{}
	p := NewProducerWithWriter(w, "pos.orders")
	p.now = func() time.Time { return time.Date(2026, 10, 18, 16, 0, 0, 0, time.FixedZone("IST", 19800)) }
	evt := order.NewCompletedEvent(order.NewRecord(order.Order{ID: "ord-1", Number: "INV-1"}))

	err := p.Publish(context.Background(), "ord-1", evt)

	require.NoError(t, err)
	require.Len(t, w.Messages, 1)
	msg := w.Messages[0]
	assert.Equal(t, "ord-1", string(msg.Key))
	assert.Equal(t, time.UTC, msg.Time.Location())
	assert.Equal(t, "application/json", header(msg, HeaderContentType))
	assert.Equal(t, order.EventOrderCompleted, header(msg, HeaderEventType))

	var decoded order.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "INV-1", decoded.Data.Order.Number)
}

func TestPublish_UntypedPayload(t *testing.T) {
	w := &mockWriter{}
	p := NewProducerWithWriter(w, "pos.orders")

	require.NoError(t, p.Publish(context.Background(), "k", map[string]int{"n": 1}))

	assert.Empty(t, header(w.Messages[0], HeaderEventType))
	assert.JSONEq(t, `{"n":1}`, string(w.Messages[0].Value))
}

func TestPublish_WriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewProducerWithWriter(&mockWriter{Err: boom}, "pos.orders")

	err := p.Publish(context.Background(), "ord-1", map[string]string{})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pos.orders")
}

func TestPublish_MarshalError(t *testing.T) {
	w := &mockWriter{}
	p := NewProducerWithWriter(w, "pos.orders")

	err := p.Publish(context.Background(), "bad", make(chan int))

	assert.Error(t, err)
	assert.Empty(t, w.Messages)
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	require.NoError(t, NewProducerWithWriter(w, "t").Close())
	assert.Equal(t, 1, w.CloseCalls)
}
