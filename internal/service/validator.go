package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/storage"
)

// MaxOrderTotal - потолок суммы заказа. В минимальных единицах это 8 знаков,
// больше провайдер не принимает; колонки сумм в базе шире этого значения.
var MaxOrderTotal = decimal.RequireFromString("999999.99")

// ItemRequest - строка заказа от клиента
type ItemRequest struct {
	MerchandiseID int64
	Quantity      int
}

// ValidatedItem - проверенная строка с ценой на момент проверки
type ValidatedItem struct {
	Merchandise *models.Merchandise
	Quantity    int
	LineTotal   decimal.Decimal
}

// OrderPlan - результат валидации: сумма и строки в исходном порядке
type OrderPlan struct {
	TotalAmount decimal.Decimal
	Items       []ValidatedItem
}

// OrderValidator проверяет состав заказа по текущему каталогу.
// Проверка только читает данные и носит рекомендательный характер:
// окончательное решение принимает условное списание при создании заказа.
type OrderValidator struct {
	merch storage.MerchStorage
}

func NewOrderValidator(merch storage.MerchStorage) *OrderValidator {
	return &OrderValidator{merch: merch}
}

// Validate проверяет строки в исходном порядке. Повторяющиеся товары
// проверяются накопительно: каждая следующая строка сравнивается
// с остатком за вычетом предыдущих строк того же товара.
func (v *OrderValidator) Validate(ctx context.Context, items []ItemRequest) (*OrderPlan, error) {
	const op = "service.OrderValidator.Validate"

	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	plan := &OrderPlan{
		TotalAmount: decimal.Zero,
		Items:       make([]ValidatedItem, 0, len(items)),
	}
	catalogue := make(map[int64]*models.Merchandise)
	claimed := make(map[int64]int)

	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}

		m, ok := catalogue[it.MerchandiseID]
		if !ok {
			var err error
			m, err = v.merch.GetMerchByID(ctx, it.MerchandiseID)
			if err != nil {
				if errors.Is(err, storage.ErrMerchNotFound) {
					return nil, &NotFoundError{Entity: "merchandise", ID: it.MerchandiseID}
				}
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			catalogue[it.MerchandiseID] = m
		}

		available := m.Stock - claimed[m.ID]
		if available < it.Quantity {
			return nil, &InsufficientStockError{
				MerchandiseID: m.ID,
				Name:          m.Name,
				Available:     available,
				Requested:     it.Quantity,
			}
		}
		claimed[m.ID] += it.Quantity

		lineTotal := m.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		plan.TotalAmount = plan.TotalAmount.Add(lineTotal)
		if plan.TotalAmount.GreaterThan(MaxOrderTotal) {
			return nil, ErrOrderTooLarge
		}
		plan.Items = append(plan.Items, ValidatedItem{
			Merchandise: m,
			Quantity:    it.Quantity,
			LineTotal:   lineTotal,
		})
	}

	return plan, nil
}
