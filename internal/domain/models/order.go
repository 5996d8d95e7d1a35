package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus - статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус входит в список допустимых
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order представляет заказ мерча вместе с позициями.
// TotalAmount фиксируется при создании и дальше не пересчитывается.
type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CreatedByID int64           `json:"created_by_id"`
	UpdatedByID int64           `json:"updated_by_id"`
	Items       []OrderItem     `json:"items,omitempty"`
}

// OrderItem - позиция заказа. UnitPrice - цена на момент оформления.
type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	MerchandiseID   int64           `json:"merchandise_id"`
	MerchandiseName string          `json:"merchandise_name,omitempty"` // заполняется через JOIN с merchandise
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderStats - сводка по заказам для админки
type OrderStats struct {
	TotalOrders       int64                 `json:"total_orders"`
	TotalRevenue      decimal.Decimal       `json:"total_revenue"`
	AverageOrderValue decimal.Decimal       `json:"average_order_value"`
	OrdersByStatus    map[OrderStatus]int64 `json:"orders_by_status"`
}
