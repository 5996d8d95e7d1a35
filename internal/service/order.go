package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/events"
	"github.com/linemk/event-shop/internal/lib/metrics"
	"github.com/linemk/event-shop/internal/storage"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type OrderService interface {
	// CreateOrder оформляет заказ от имени пользователя и резервирует остаток.
	CreateOrder(ctx context.Context, userID int64, items []ItemRequest) (*models.Order, error)
	// GetOrder возвращает заказ пользователя. Чужой заказ считается ненайденным.
	GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID int64, filter storage.OrderFilter) ([]*models.Order, error)
	ListAllOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, error)
	GetStats(ctx context.Context) (*models.OrderStats, error)
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	txOpts    storage.TxOptions
	orderRepo storage.OrderStorage
	ledger    storage.InventoryLedger
	validator *OrderValidator
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	txOpts storage.TxOptions,
	orderRepo storage.OrderStorage,
	merchRepo storage.MerchStorage,
	ledger storage.InventoryLedger,
	publisher events.Publisher,
	m *metrics.Metrics,
) OrderService {
	return &orderService{
		log:       log,
		db:        db,
		txOpts:    txOpts,
		orderRepo: orderRepo,
		ledger:    ledger,
		validator: NewOrderValidator(merchRepo),
		publisher: publisher,
		metrics:   m,
	}
}

// CreateOrder проверяет состав заказа, затем в одной транзакции создаёт заказ,
// его позиции и списывает остаток. Любая ошибка откатывает всё целиком.
func (s *orderService) CreateOrder(ctx context.Context, userID int64, items []ItemRequest) (*models.Order, error) {
	const op = "service.OrderService.CreateOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	plan, err := s.validator.Validate(ctx, items)
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			s.metrics.StockRejected(ctx, metrics.StageValidation)
		}
		logger.Warn("order validation failed", slog.Any("error", err))
		return nil, err
	}

	var created *models.Order
	err = storage.WithTx(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		order := &models.Order{
			UserID:      userID,
			TotalAmount: plan.TotalAmount,
			Status:      models.OrderStatusPending,
			CreatedByID: userID,
			UpdatedByID: userID,
		}
		if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
			return err
		}

		order.Items = make([]models.OrderItem, 0, len(plan.Items))
		for _, it := range plan.Items {
			item := models.OrderItem{
				OrderID:         order.ID,
				MerchandiseID:   it.Merchandise.ID,
				MerchandiseName: it.Merchandise.Name,
				Quantity:        it.Quantity,
				UnitPrice:       it.Merchandise.Price,
				Subtotal:        it.LineTotal,
			}
			if err := s.orderRepo.CreateOrderItem(ctx, tx, &item); err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}

		for _, r := range reservationsFromPlan(plan.Items) {
			if err := s.reserve(ctx, tx, r); err != nil {
				return err
			}
		}

		created = order
		return nil
	})
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			s.metrics.StockRejected(ctx, metrics.StageCommit)
			logger.Warn("stock ran out before commit", slog.Any("error", err))
			return nil, err
		}
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.OrderCreated(ctx)
	publish(ctx, logger, s.publisher, events.EventOrderCreated, created.ID, orderCreatedPayload(created))

	logger.Info("order created", slog.Int64("orderID", created.ID), slog.String("total", created.TotalAmount.String()))
	return created, nil
}

// reserve списывает остаток; при нехватке читает фактический остаток под блокировкой,
// чтобы сообщить клиенту, сколько было в момент отказа.
func (s *orderService) reserve(ctx context.Context, tx *sql.Tx, r reservation) error {
	err := s.ledger.Reserve(ctx, tx, r.MerchandiseID, r.Quantity)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrMerchNotFound):
		return &NotFoundError{Entity: "merchandise", ID: r.MerchandiseID}
	case errors.Is(err, storage.ErrInsufficientStock):
		available, lockErr := s.ledger.LockStock(ctx, tx, r.MerchandiseID)
		if lockErr != nil {
			return lockErr
		}
		return &InsufficientStockError{
			MerchandiseID: r.MerchandiseID,
			Name:          r.Name,
			Available:     available,
			Requested:     r.Quantity,
		}
	default:
		return err
	}
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, &NotFoundError{Entity: "order", ID: orderID}
		}
		s.log.Error("failed to get order", slog.String("op", op), slog.Int64("orderID", orderID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.UserID != userID {
		return nil, &NotFoundError{Entity: "order", ID: orderID}
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID int64, filter storage.OrderFilter) ([]*models.Order, error) {
	const op = "service.OrderService.ListUserOrders"

	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	orders, err := s.orderRepo.ListOrdersByUserID(ctx, userID, filter)
	if err != nil {
		s.log.Error("failed to list orders", slog.String("op", op), slog.Int64("userID", userID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *orderService) ListAllOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, error) {
	const op = "service.OrderService.ListAllOrders"

	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	orders, err := s.orderRepo.ListOrders(ctx, filter)
	if err != nil {
		s.log.Error("failed to list orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *orderService) GetStats(ctx context.Context) (*models.OrderStats, error) {
	const op = "service.OrderService.GetStats"

	stats, err := s.orderRepo.GetOrderStats(ctx)
	if err != nil {
		s.log.Error("failed to get order stats", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

func normalizeFilter(f storage.OrderFilter) (storage.OrderFilter, error) {
	if f.Status != "" && !f.Status.Valid() {
		return f, ErrInvalidStatus
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}

func orderCreatedPayload(o *models.Order) events.OrderCreatedPayload {
	items := make([]events.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItem{
			MerchandiseID: it.MerchandiseID,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
		})
	}
	return events.OrderCreatedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       items,
	}
}
