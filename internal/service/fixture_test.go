package service_test

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/service"
	"github.com/linemk/event-shop/internal/storage"
)

type fixture struct {
	db         *sql.DB
	mock       sqlmock.Sqlmock
	merch      *fakeMerchRepo
	ledger     *fakeLedger
	orders     *fakeOrderRepo
	pub        *recordingPublisher
	orderSvc   service.OrderService
	reconciler service.StatusReconciler
}

func newFixture(t *testing.T, items ...*models.Merchandise) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:     db,
		mock:   mock,
		merch:  newFakeMerchRepo(items...),
		orders: newFakeOrderRepo(),
		pub:    &recordingPublisher{},
	}
	f.ledger = newFakeLedger(f.merch)

	txOpts := storage.TxOptions{IsolationLevel: sql.LevelReadCommitted}
	f.orderSvc = service.NewOrderService(testLogger(), db, txOpts, f.orders, f.merch, f.ledger, f.pub, nil)
	f.reconciler = service.NewStatusReconciler(testLogger(), db, txOpts, f.orders, f.ledger, f.pub, nil)
	return f
}

func (f *fixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *fixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func merchItem(id int64, name, price string, stock int) *models.Merchandise {
	return &models.Merchandise{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

// seedOrder кладёт заказ напрямую в репозиторий, минуя склад
func (f *fixture) seedOrder(id, userID int64, status models.OrderStatus, items ...models.OrderItem) {
	total := decimal.Zero
	for i := range items {
		items[i].OrderID = id
		total = total.Add(items[i].Subtotal)
	}
	f.orders.put(&models.Order{
		ID:          id,
		UserID:      userID,
		TotalAmount: total,
		Status:      status,
		CreatedByID: userID,
		UpdatedByID: userID,
		Items:       items,
	})
}

func line(merchID int64, name string, qty int, price string) models.OrderItem {
	p := decimal.RequireFromString(price)
	return models.OrderItem{
		MerchandiseID:   merchID,
		MerchandiseName: name,
		Quantity:        qty,
		UnitPrice:       p,
		Subtotal:        p.Mul(decimal.NewFromInt(int64(qty))),
	}
}
