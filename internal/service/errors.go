package service

import (
	"errors"
	"fmt"

	"github.com/linemk/event-shop/internal/storage"
)

var (
	ErrAlreadyCancelled       = errors.New("order is already cancelled")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrEmptyOrder             = errors.New("order must contain at least one item")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrPaymentTarget          = errors.New("exactly one of order_id or registration_id must be set")
	ErrOrderNotPayable        = errors.New("order is not awaiting payment")
	ErrRegistrationNotPayable = errors.New("registration does not require payment")
	ErrOrderTooLarge          = errors.New("order total exceeds the allowed maximum")
)

// NotFoundError - сущность не найдена (или не принадлежит пользователю)
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// InsufficientStockError - остатка не хватает. Available - остаток,
// увиденный в момент проверки (при валидации или под блокировкой строки).
type InsufficientStockError struct {
	MerchandiseID int64
	Name          string
	Available     int
	Requested     int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return storage.ErrInsufficientStock
}
