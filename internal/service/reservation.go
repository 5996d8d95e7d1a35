package service

import (
	"sort"

	"github.com/linemk/event-shop/internal/domain/models"
)

// reservation - суммарное количество по одному товару
type reservation struct {
	MerchandiseID int64
	Name          string
	Quantity      int
}

// reservationsFromPlan складывает количества по товару и сортирует по возрастанию id,
// чтобы параллельные заказы брали блокировки строк в одном порядке.
func reservationsFromPlan(items []ValidatedItem) []reservation {
	acc := make(map[int64]*reservation)
	for _, it := range items {
		r, ok := acc[it.Merchandise.ID]
		if !ok {
			r = &reservation{MerchandiseID: it.Merchandise.ID, Name: it.Merchandise.Name}
			acc[it.Merchandise.ID] = r
		}
		r.Quantity += it.Quantity
	}
	return sortedReservations(acc)
}

func reservationsFromItems(items []models.OrderItem) []reservation {
	acc := make(map[int64]*reservation)
	for _, it := range items {
		r, ok := acc[it.MerchandiseID]
		if !ok {
			r = &reservation{MerchandiseID: it.MerchandiseID, Name: it.MerchandiseName}
			acc[it.MerchandiseID] = r
		}
		r.Quantity += it.Quantity
	}
	return sortedReservations(acc)
}

func sortedReservations(acc map[int64]*reservation) []reservation {
	out := make([]reservation, 0, len(acc))
	for _, r := range acc {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchandiseID < out[j].MerchandiseID })
	return out
}
