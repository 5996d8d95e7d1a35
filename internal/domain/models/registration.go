package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RegistrationStatus string

const (
	RegistrationStatusInterested RegistrationStatus = "interested"
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusWaitlisted RegistrationStatus = "waitlisted"
)

// PaymentStatusPaid - значение payment_status регистрации после успешной оплаты
const PaymentStatusPaid = "paid"

// Registration - регистрация пользователя на мероприятие
type Registration struct {
	ID            int64              `json:"id"`
	UserID        int64              `json:"user_id"`
	EventID       int64              `json:"event_id"`
	EventPrice    decimal.Decimal    `json:"event_price"` // цена мероприятия, через JOIN с events
	Status        RegistrationStatus `json:"status"`
	PaymentStatus string             `json:"payment_status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
