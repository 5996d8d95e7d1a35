package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/linemk/event-shop/internal/domain/models"
)

// OrderFilter - фильтр и пагинация для списков заказов. Пустой Status означает «любой».
type OrderFilter struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// CreateOrder вставляет заказ в транзакции и заполняет ID и временные метки.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error
	// CreateOrderItem вставляет позицию заказа в транзакции.
	CreateOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error
	// GetOrderByID возвращает заказ вместе с позициями.
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// LockOrderByIDTx блокирует строку заказа (FOR UPDATE) до конца транзакции и возвращает его с позициями.
	LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	// UpdateOrderStatus меняет статус и автора изменения, возвращает новое updated_at.
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus, updatedBy int64) (time.Time, error)
	// ListOrdersByUserID возвращает заказы пользователя, новые первыми.
	ListOrdersByUserID(ctx context.Context, userID int64, filter OrderFilter) ([]*models.Order, error)
	// ListOrders возвращает заказы всех пользователей, новые первыми.
	ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error)
	// GetOrderStats считает сводку по всем заказам.
	GetOrderStats(ctx context.Context) (*models.OrderStats, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

// querier - общее подмножество *sql.DB и *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = "id, user_id, total_amount, status, created_at, updated_at, created_by_id, updated_by_id"

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.CreatedByID, &o.UpdatedByID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_amount, status, created_by_id, updated_by_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		order.UserID, order.TotalAmount, order.Status, order.CreatedByID, order.UpdatedByID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *orderRepository) CreateOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, merchandise_id, quantity, unit_price, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		item.OrderID, item.MerchandiseID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.getOrder(ctx, r.db, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

func (r *orderRepository) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return r.getOrder(ctx, tx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (r *orderRepository) getOrder(ctx context.Context, q querier, query string, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		if isLockNotAvailable(err) {
			return nil, fmt.Errorf("get order %d: %w", id, ErrLockTimeout)
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	items, err := loadItems(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	return order, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus, updatedBy int64) (time.Time, error) {
	var updatedAt time.Time
	err := tx.QueryRowContext(ctx,
		`UPDATE orders SET status = $1, updated_by_id = $2, updated_at = NOW()
		 WHERE id = $3
		 RETURNING updated_at`,
		status, updatedBy, id,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrOrderNotFound
		}
		return time.Time{}, fmt.Errorf("update order status: %w", err)
	}
	return updatedAt, nil
}

func (r *orderRepository) ListOrdersByUserID(ctx context.Context, userID int64, filter OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`
	return r.listOrders(ctx, query, userID, string(filter.Status), filter.Limit, filter.Offset)
}

func (r *orderRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	return r.listOrders(ctx, query, string(filter.Status), filter.Limit, filter.Offset)
}

func (r *orderRepository) listOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}
	return orders, nil
}

// loadItems одним запросом достаёт позиции для набора заказов, с JOIN для имени товара.
func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.merchandise_id, m.name, oi.quantity, oi.unit_price, oi.subtotal, oi.created_at
		 FROM order_items oi
		 JOIN merchandise m ON m.id = oi.merchandise_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.order_id, oi.id`,
		pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]models.OrderItem, len(orderIDs))
	for rows.Next() {
		var it models.OrderItem
		err := rows.Scan(&it.ID, &it.OrderID, &it.MerchandiseID, &it.MerchandiseName, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	stats := &models.OrderStats{OrdersByStatus: make(map[models.OrderStatus]int64)}

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(total_amount), 0) FROM orders",
	).Scan(&stats.TotalOrders, &stats.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("order totals: %w", err)
	}
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(stats.TotalOrders)).Round(2)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("orders by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.OrdersByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
