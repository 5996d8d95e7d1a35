// Package events описывает доменные события магазина и их публикацию в Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentApplied     = "PaymentApplied"
)

const eventVersion = 1

// Envelope - общая обёртка события. CorrelationID - id заказа (или регистрации),
// он же ключ партиционирования.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderItem struct {
	MerchandiseID int64           `json:"merchandise_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	ActorID int64  `json:"actor_id"`
	Kind    string `json:"kind"` // plain, cancellation, reactivation
}

type PaymentAppliedPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Succeeded       bool   `json:"succeeded"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	OrderID         *int64 `json:"order_id,omitempty"`
	RegistrationID  *int64 `json:"registration_id,omitempty"`
}

// NewEnvelope заворачивает payload в конверт с новым event_id
func NewEnvelope(eventType, producer string, correlationID int64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: strconv.FormatInt(correlationID, 10),
		Payload:       raw,
	}, nil
}

// UnwrapPayload декодирует payload конкретного события
func UnwrapPayload[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
