package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventOrderCreated, "event-shop", 42, OrderCreatedPayload{
		OrderID:     42,
		UserID:      7,
		TotalAmount: decimal.RequireFromString("25.50"),
		Items:       []OrderItem{{MerchandiseID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("12.75")}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, EventOrderCreated, env.EventType)
	assert.Equal(t, "42", env.CorrelationID)
	assert.Equal(t, 1, env.EventVersion)

	p, err := UnwrapPayload[OrderCreatedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
	assert.True(t, decimal.RequireFromString("25.50").Equal(p.TotalAmount))
	require.Len(t, p.Items, 1)
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	a, err := NewEnvelope(EventPaymentApplied, "event-shop", 1, PaymentAppliedPayload{})
	require.NoError(t, err)
	b, err := NewEnvelope(EventPaymentApplied, "event-shop", 1, PaymentAppliedPayload{})
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisherWithWriter(discardLogger(), w)

	env, err := NewEnvelope(EventOrderStatusChanged, "event-shop", 9, OrderStatusChangedPayload{
		OrderID: 9, From: "pending", To: "cancelled", ActorID: 1, Kind: "cancellation",
	})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), env))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("9"), msg.Key)
	assert.Equal(t, "x-event-type", msg.Headers[0].Key)
	assert.Equal(t, []byte(EventOrderStatusChanged), msg.Headers[0].Value)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, env.EventID, decoded.EventID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisherWithWriter(discardLogger(), w)

	env, err := NewEnvelope(EventOrderCreated, "event-shop", 1, OrderCreatedPayload{OrderID: 1})
	require.NoError(t, err)
	assert.Error(t, p.Publish(context.Background(), env))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Envelope{}))
	assert.NoError(t, p.Close())
}
