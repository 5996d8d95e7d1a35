package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/events"
	"github.com/linemk/event-shop/internal/payments"
	"github.com/linemk/event-shop/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- каталог и склад ----

type fakeMerchRepo struct {
	items map[int64]*models.Merchandise
}

var _ storage.MerchStorage = (*fakeMerchRepo)(nil)

func newFakeMerchRepo(items ...*models.Merchandise) *fakeMerchRepo {
	f := &fakeMerchRepo{items: make(map[int64]*models.Merchandise)}
	for _, m := range items {
		f.items[m.ID] = m
	}
	return f
}

func (f *fakeMerchRepo) GetMerchByID(ctx context.Context, id int64) (*models.Merchandise, error) {
	m, ok := f.items[id]
	if !ok {
		return nil, storage.ErrMerchNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMerchRepo) ListMerch(ctx context.Context, limit, offset int) ([]*models.Merchandise, error) {
	out := make([]*models.Merchandise, 0, len(f.items))
	for _, m := range f.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []*models.Merchandise{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMerchRepo) CreateMerch(ctx context.Context, m *models.Merchandise) (*models.Merchandise, error) {
	for _, existing := range f.items {
		if existing.Name == m.Name {
			return nil, storage.ErrDuplicate
		}
	}
	m.ID = int64(len(f.items) + 1)
	f.items[m.ID] = m
	return m, nil
}

type ledgerCall struct {
	MerchandiseID int64
	Quantity      int
}

// fakeLedger меняет остаток прямо в каталоге fakeMerchRepo
type fakeLedger struct {
	merch     *fakeMerchRepo
	reserves  []ledgerCall
	releases  []ledgerCall
	locks     []int64
	onReserve func(merchID int64) // вызывается перед списанием, имитирует конкурента
}

var _ storage.InventoryLedger = (*fakeLedger)(nil)

func newFakeLedger(merch *fakeMerchRepo) *fakeLedger {
	return &fakeLedger{merch: merch}
}

func (l *fakeLedger) CheckAvailability(ctx context.Context, merchID int64, quantity int) (bool, error) {
	m, ok := l.merch.items[merchID]
	if !ok {
		return false, storage.ErrMerchNotFound
	}
	return m.Stock >= quantity, nil
}

func (l *fakeLedger) LockStock(ctx context.Context, tx *sql.Tx, merchID int64) (int, error) {
	l.locks = append(l.locks, merchID)
	m, ok := l.merch.items[merchID]
	if !ok {
		return 0, storage.ErrMerchNotFound
	}
	return m.Stock, nil
}

func (l *fakeLedger) Reserve(ctx context.Context, tx *sql.Tx, merchID int64, quantity int) error {
	if l.onReserve != nil {
		l.onReserve(merchID)
	}
	l.reserves = append(l.reserves, ledgerCall{merchID, quantity})
	m, ok := l.merch.items[merchID]
	if !ok {
		return storage.ErrMerchNotFound
	}
	if m.Stock < quantity {
		return storage.ErrInsufficientStock
	}
	m.Stock -= quantity
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, tx *sql.Tx, merchID int64, quantity int) error {
	l.releases = append(l.releases, ledgerCall{merchID, quantity})
	m, ok := l.merch.items[merchID]
	if !ok {
		return storage.ErrMerchNotFound
	}
	m.Stock += quantity
	return nil
}

func (l *fakeLedger) stock(id int64) int {
	return l.merch.items[id].Stock
}

// ---- заказы ----

type fakeOrderRepo struct {
	orders map[int64]*models.Order
	nextID int64
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order), nextID: 1}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (f *fakeOrderRepo) put(o *models.Order) {
	if o.ID == 0 {
		o.ID = f.nextID
	}
	if o.ID >= f.nextID {
		f.nextID = o.ID + 1
	}
	f.orders[o.ID] = copyOrder(o)
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	f.put(order)
	return nil
}

func (f *fakeOrderRepo) CreateOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	o, ok := f.orders[item.OrderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	item.ID = int64(len(o.Items) + 1)
	o.Items = append(o.Items, *item)
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeOrderRepo) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return f.GetOrderByID(ctx, id)
}

func (f *fakeOrderRepo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus, updatedBy int64) (time.Time, error) {
	o, ok := f.orders[id]
	if !ok {
		return time.Time{}, storage.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedByID = updatedBy
	o.UpdatedAt = time.Now()
	return o.UpdatedAt, nil
}

func (f *fakeOrderRepo) filter(match func(*models.Order) bool, filter storage.OrderFilter) []*models.Order {
	out := make([]*models.Order, 0)
	for _, o := range f.orders {
		if match(o) && (filter.Status == "" || o.Status == filter.Status) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return []*models.Order{}
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (f *fakeOrderRepo) ListOrdersByUserID(ctx context.Context, userID int64, filter storage.OrderFilter) ([]*models.Order, error) {
	return f.filter(func(o *models.Order) bool { return o.UserID == userID }, filter), nil
}

func (f *fakeOrderRepo) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, error) {
	return f.filter(func(*models.Order) bool { return true }, filter), nil
}

func (f *fakeOrderRepo) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	stats := &models.OrderStats{OrdersByStatus: make(map[models.OrderStatus]int64)}
	for _, o := range f.orders {
		stats.TotalOrders++
		stats.TotalRevenue = stats.TotalRevenue.Add(o.TotalAmount)
		stats.OrdersByStatus[o.Status]++
	}
	return stats, nil
}

// ---- платежи и регистрации ----

type fakePaymentRepo struct {
	byIntent  map[string]*models.Payment
	nextID    int64
	createErr error
}

var _ storage.PaymentStorage = (*fakePaymentRepo)(nil)

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{byIntent: make(map[string]*models.Payment), nextID: 1}
}

func (f *fakePaymentRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byIntent[p.PaymentIntentID]; ok {
		return storage.ErrDuplicate
	}
	p.ID = f.nextID
	f.nextID++
	cp := *p
	f.byIntent[p.PaymentIntentID] = &cp
	return nil
}

func (f *fakePaymentRepo) GetPendingPayment(ctx context.Context, orderID, registrationID *int64) (*models.Payment, error) {
	var found *models.Payment
	for _, p := range f.byIntent {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		sameOrder := orderID != nil && p.OrderID != nil && *p.OrderID == *orderID
		sameReg := registrationID != nil && p.RegistrationID != nil && *p.RegistrationID == *registrationID
		if (sameOrder || sameReg) && (found == nil || p.ID > found.ID) {
			found = p
		}
	}
	if found == nil {
		return nil, storage.ErrPaymentNotFound
	}
	cp := *found
	return &cp, nil
}

func (f *fakePaymentRepo) LockPaymentByIntentIDTx(ctx context.Context, tx *sql.Tx, intentID string) (*models.Payment, error) {
	p, ok := f.byIntent[intentID]
	if !ok {
		return nil, storage.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentRepo) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PaymentStatus) error {
	for _, p := range f.byIntent {
		if p.ID == id {
			p.Status = status
			return nil
		}
	}
	return storage.ErrPaymentNotFound
}

type fakeRegistrationRepo struct {
	regs map[int64]*models.Registration
}

var _ storage.RegistrationStorage = (*fakeRegistrationRepo)(nil)

func newFakeRegistrationRepo(regs ...*models.Registration) *fakeRegistrationRepo {
	f := &fakeRegistrationRepo{regs: make(map[int64]*models.Registration)}
	for _, r := range regs {
		f.regs[r.ID] = r
	}
	return f
}

func (f *fakeRegistrationRepo) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	r, ok := f.regs[id]
	if !ok {
		return nil, storage.ErrRegistrationNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRegistrationRepo) MarkRegistrationPaidTx(ctx context.Context, tx *sql.Tx, id int64) error {
	r, ok := f.regs[id]
	if !ok {
		return storage.ErrRegistrationNotFound
	}
	r.PaymentStatus = models.PaymentStatusPaid
	r.Status = models.RegistrationStatusRegistered
	return nil
}

// ---- провайдер, дедупликация, события ----

type fakeGateway struct {
	requests  []payments.IntentRequest
	cancelled []string
	event     *payments.WebhookEvent
	parseErr  error
	nextID    int
}

var _ payments.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	g.requests = append(g.requests, req)
	g.nextID++
	id := fmt.Sprintf("pi_%d", g.nextID)
	return &payments.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) GetPaymentIntent(ctx context.Context, id string) (*payments.Intent, error) {
	return &payments.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) CancelPaymentIntent(ctx context.Context, id string) error {
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.event, nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) Seen(ctx context.Context, id string) (bool, error) {
	return d.seen[id], nil
}

func (d *fakeDeduper) Mark(ctx context.Context, id string) error {
	d.seen[id] = true
	return nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Envelope
}

func (p *recordingPublisher) Publish(ctx context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.got))
	for _, env := range p.got {
		out = append(out, env.EventType)
	}
	return out
}
