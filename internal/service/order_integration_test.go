//go:build integration

package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/events"
	"github.com/linemk/event-shop/internal/service"
	"github.com/linemk/event-shop/internal/storage"
	"github.com/linemk/event-shop/internal/storage/pgtest"
)

type pgServices struct {
	db         *sql.DB
	orders     service.OrderService
	reconciler service.StatusReconciler
}

func newPGServices(t *testing.T) *pgServices {
	db := pgtest.Start(t)
	log := testLogger()
	opts := storage.DefaultTxOptions()

	orderRepo := storage.NewOrderRepository(db)
	merchRepo := storage.NewMerchRepository(db)
	ledger := storage.NewInventoryLedger(db)
	pub := events.NopPublisher{}

	return &pgServices{
		db:         db,
		orders:     service.NewOrderService(log, db, opts, orderRepo, merchRepo, ledger, pub, nil),
		reconciler: service.NewStatusReconciler(log, db, opts, orderRepo, ledger, pub, nil),
	}
}

func TestCreateOrder_ConcurrentBuyersOfLastItems(t *testing.T) {
	s := newPGServices(t)
	ctx := context.Background()

	const stock = 5
	merchID := pgtest.SeedMerch(t, s.db, "Tote bag", "8.00", stock)

	const buyers = 12
	userIDs := make([]int64, buyers)
	for i := range userIDs {
		userIDs[i] = pgtest.SeedUser(t, s.db, "buyer"+string(rune('a'+i))+"@example.com", false)
	}

	var (
		wg       sync.WaitGroup
		created  atomic.Int64
		rejected atomic.Int64
	)
	for _, uid := range userIDs {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, err := s.orders.CreateOrder(ctx, uid, []service.ItemRequest{{MerchandiseID: merchID, Quantity: 1}})
			var stockErr *service.InsufficientStockError
			switch {
			case err == nil:
				created.Add(1)
			case errors.As(err, &stockErr):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, int64(stock), created.Load())
	assert.Equal(t, int64(buyers-stock), rejected.Load())
	assert.Equal(t, 0, pgtest.Stock(t, s.db, merchID))

	var items int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM order_items").Scan(&items))
	assert.Equal(t, stock, items, "rejected orders leave no rows behind")
}

func TestOrderLifecycle_CancelAndReactivate(t *testing.T) {
	s := newPGServices(t)
	ctx := context.Background()

	userID := pgtest.SeedUser(t, s.db, "user@example.com", false)
	adminID := pgtest.SeedUser(t, s.db, "admin@example.com", true)
	shirt := pgtest.SeedMerch(t, s.db, "T-Shirt", "15.00", 4)
	mug := pgtest.SeedMerch(t, s.db, "Mug", "7.50", 2)

	order, err := s.orders.CreateOrder(ctx, userID, []service.ItemRequest{
		{MerchandiseID: mug, Quantity: 1},
		{MerchandiseID: shirt, Quantity: 2},
		{MerchandiseID: mug, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "45", order.TotalAmount.String())
	assert.Equal(t, 2, pgtest.Stock(t, s.db, shirt))
	assert.Equal(t, 0, pgtest.Stock(t, s.db, mug))

	// отмена возвращает остаток
	cancelled, err := s.reconciler.UpdateStatus(ctx, adminID, order.ID, models.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, adminID, cancelled.UpdatedByID)
	assert.Equal(t, 4, pgtest.Stock(t, s.db, shirt))
	assert.Equal(t, 2, pgtest.Stock(t, s.db, mug))

	// повторная отмена ничего не возвращает
	_, err = s.reconciler.UpdateStatus(ctx, adminID, order.ID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, service.ErrAlreadyCancelled)
	assert.Equal(t, 2, pgtest.Stock(t, s.db, mug))

	// пока заказ отменён, кружки раскупили
	_, err = s.orders.CreateOrder(ctx, userID, []service.ItemRequest{{MerchandiseID: mug, Quantity: 1}})
	require.NoError(t, err)

	_, err = s.reconciler.UpdateStatus(ctx, adminID, order.ID, models.OrderStatusPending)
	var stockErr *service.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, mug, stockErr.MerchandiseID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)
	// ничего не списано, заказ остался отменённым
	assert.Equal(t, 4, pgtest.Stock(t, s.db, shirt))
	assert.Equal(t, 1, pgtest.Stock(t, s.db, mug))

	got, err := s.orders.GetOrder(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)

	// докупили, теперь реактивация проходит
	_, err = s.db.Exec("UPDATE merchandise SET stock = stock + 1 WHERE id = $1", mug)
	require.NoError(t, err)

	reactivated, err := s.reconciler.UpdateStatus(ctx, adminID, order.ID, models.OrderStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reactivated.Status)
	assert.Equal(t, 2, pgtest.Stock(t, s.db, shirt))
	assert.Equal(t, 0, pgtest.Stock(t, s.db, mug))
}

func TestUpdateStatus_ConcurrentCancelReleasesOnce(t *testing.T) {
	s := newPGServices(t)
	ctx := context.Background()

	userID := pgtest.SeedUser(t, s.db, "user@example.com", false)
	adminID := pgtest.SeedUser(t, s.db, "admin@example.com", true)
	merchID := pgtest.SeedMerch(t, s.db, "Poster", "5.00", 3)

	order, err := s.orders.CreateOrder(ctx, userID, []service.ItemRequest{{MerchandiseID: merchID, Quantity: 3}})
	require.NoError(t, err)

	const admins = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.reconciler.UpdateStatus(ctx, adminID, order.ID, models.OrderStatusCancelled)
			if err == nil {
				succeeded.Add(1)
				return
			}
			if !errors.Is(err, service.ErrAlreadyCancelled) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, 3, pgtest.Stock(t, s.db, merchID))
}
