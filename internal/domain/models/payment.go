package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentType string

const (
	PaymentTypeMerchandise       PaymentType = "merchandise"
	PaymentTypeEventRegistration PaymentType = "event_registration"
)

// Payment - платёж через внешнего провайдера.
// Ровно одно из OrderID / RegistrationID должно быть заполнено.
type Payment struct {
	ID              int64         `json:"id"`
	PaymentIntentID string        `json:"payment_intent_id"`
	Amount          int64         `json:"amount"` // в минимальных единицах валюты (пенсы, центы)
	Currency        string        `json:"currency"`
	Status          PaymentStatus `json:"status"`
	Type            PaymentType   `json:"payment_type"`
	UserID          int64         `json:"user_id"`
	OrderID         *int64        `json:"order_id,omitempty"`
	RegistrationID  *int64        `json:"registration_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
