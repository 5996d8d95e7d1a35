package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Merchandise представляет товар мерча, доступный для заказа.
// Остаток (Stock) меняется только через складской учёт (storage.InventoryLedger).
type Merchandise struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    *string         `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
