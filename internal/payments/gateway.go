// Package payments - интеграция с платёжным провайдером (Stripe).
package payments

import (
	"context"
	"errors"
)

// Типы событий провайдера, на которые реагирует магазин
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// IntentRequest - параметры создания платёжного намерения.
// Amount - в минимальных единицах валюты.
type IntentRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
}

// WebhookEvent - проверенное событие провайдера.
// PaymentIntentID заполнен только для событий payment_intent.*.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
}

// Gateway - то, что магазину нужно от провайдера
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// GetPaymentIntent нужен, чтобы повторно выдать client_secret уже созданного намерения.
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	// ParseWebhook проверяет подпись и разбирает тело вебхука.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
