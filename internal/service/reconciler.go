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

// TransitionKind - как переход статуса повлиял на склад
type TransitionKind string

const (
	TransitionPlain        TransitionKind = "plain"
	TransitionCancellation TransitionKind = "cancellation"
	TransitionReactivation TransitionKind = "reactivation"
)

// Transition - результат применённого перехода
type Transition struct {
	Order *models.Order
	From  models.OrderStatus
	Kind  TransitionKind
}

// StatusReconciler меняет статус заказа и держит склад в согласии со статусом:
// отмена возвращает остаток, выход из отмены снова его списывает.
// Строка заказа блокируется на время перехода, поэтому переходы одного заказа идут строго по очереди.
type StatusReconciler interface {
	// UpdateStatus применяет переход в собственной транзакции. actorID пишется в updated_by_id.
	UpdateStatus(ctx context.Context, actorID, orderID int64, status models.OrderStatus) (*models.Order, error)
	// TransitionTx применяет переход внутри уже открытой транзакции.
	TransitionTx(ctx context.Context, tx *sql.Tx, actorID, orderID int64, status models.OrderStatus) (*Transition, error)
	// MarkPaidTx переводит ожидающий оплаты заказ в paid. Заказ в любом другом статусе
	// не трогается, в этом случае applied == false. Это сознательное отступление
	// от обычного перехода: shipped и delivered не откатываются в paid, а cancelled
	// не получает повторного резерва, иначе последующая отмена вернула бы остаток дважды.
	MarkPaidTx(ctx context.Context, tx *sql.Tx, actorID, orderID int64) (tr *Transition, applied bool, err error)
}

type statusReconciler struct {
	log       *slog.Logger
	db        *sql.DB
	txOpts    storage.TxOptions
	orderRepo storage.OrderStorage
	ledger    storage.InventoryLedger
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func NewStatusReconciler(
	log *slog.Logger,
	db *sql.DB,
	txOpts storage.TxOptions,
	orderRepo storage.OrderStorage,
	ledger storage.InventoryLedger,
	publisher events.Publisher,
	m *metrics.Metrics,
) StatusReconciler {
	return &statusReconciler{
		log:       log,
		db:        db,
		txOpts:    txOpts,
		orderRepo: orderRepo,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
	}
}

func (r *statusReconciler) UpdateStatus(ctx context.Context, actorID, orderID int64, status models.OrderStatus) (*models.Order, error) {
	const op = "service.StatusReconciler.UpdateStatus"
	logger := r.log.With(
		slog.String("op", op),
		slog.Int64("orderID", orderID),
		slog.Int64("actorID", actorID),
		slog.String("status", string(status)),
	)

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	var tr *Transition
	err := storage.WithTx(ctx, r.db, r.txOpts, func(tx *sql.Tx) error {
		var err error
		tr, err = r.TransitionTx(ctx, tx, actorID, orderID, status)
		return err
	})
	if err != nil {
		var stockErr *InsufficientStockError
		var nf *NotFoundError
		switch {
		case errors.As(err, &stockErr):
			r.metrics.StockRejected(ctx, metrics.StageReactivation)
			logger.Warn("reactivation rejected", slog.Any("error", err))
			return nil, err
		case errors.As(err, &nf), errors.Is(err, ErrAlreadyCancelled):
			logger.Warn("transition rejected", slog.Any("error", err))
			return nil, err
		}
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.afterTransition(ctx, logger, tr, actorID)
	logger.Info("order status updated", slog.String("from", string(tr.From)), slog.String("kind", string(tr.Kind)))
	return tr.Order, nil
}

// afterTransition вызывается только после коммита
func (r *statusReconciler) afterTransition(ctx context.Context, logger *slog.Logger, tr *Transition, actorID int64) {
	r.metrics.OrderTransition(ctx, string(tr.Kind), string(tr.Order.Status))
	publish(ctx, logger, r.publisher, events.EventOrderStatusChanged, tr.Order.ID, events.OrderStatusChangedPayload{
		OrderID: tr.Order.ID,
		From:    string(tr.From),
		To:      string(tr.Order.Status),
		ActorID: actorID,
		Kind:    string(tr.Kind),
	})
}

func (r *statusReconciler) TransitionTx(ctx context.Context, tx *sql.Tx, actorID, orderID int64, status models.OrderStatus) (*Transition, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	order, err := r.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, tx, order, actorID, status)
}

// MarkPaidTx меняет статус только из pending, см. описание в интерфейсе.
func (r *statusReconciler) MarkPaidTx(ctx context.Context, tx *sql.Tx, actorID, orderID int64) (*Transition, bool, error) {
	order, err := r.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.Status != models.OrderStatusPending {
		return &Transition{Order: order, From: order.Status}, false, nil
	}
	tr, err := r.apply(ctx, tx, order, actorID, models.OrderStatusPaid)
	if err != nil {
		return nil, false, err
	}
	return tr, true, nil
}

func (r *statusReconciler) lockOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Order, error) {
	order, err := r.orderRepo.LockOrderByIDTx(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, &NotFoundError{Entity: "order", ID: orderID}
		}
		return nil, err
	}
	return order, nil
}

// apply выполняет переход над уже заблокированным заказом
func (r *statusReconciler) apply(ctx context.Context, tx *sql.Tx, order *models.Order, actorID int64, to models.OrderStatus) (*Transition, error) {
	from := order.Status
	kind := TransitionPlain

	switch {
	case to == models.OrderStatusCancelled && from == models.OrderStatusCancelled:
		return nil, ErrAlreadyCancelled

	case to == models.OrderStatusCancelled:
		kind = TransitionCancellation
		for _, res := range reservationsFromItems(order.Items) {
			if err := r.ledger.Release(ctx, tx, res.MerchandiseID, res.Quantity); err != nil {
				return nil, fmt.Errorf("release %d: %w", res.MerchandiseID, err)
			}
		}

	case from == models.OrderStatusCancelled:
		kind = TransitionReactivation
		if err := r.reacquire(ctx, tx, order.Items); err != nil {
			return nil, err
		}
	}

	updatedAt, err := r.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, to, actorID)
	if err != nil {
		return nil, err
	}
	order.Status = to
	order.UpdatedByID = actorID
	order.UpdatedAt = updatedAt

	return &Transition{Order: order, From: from, Kind: kind}, nil
}

// reacquire сначала блокирует и проверяет остаток по всем товарам, и только
// если хватает на все, списывает. При нехватке ничего не списывается.
func (r *statusReconciler) reacquire(ctx context.Context, tx *sql.Tx, items []models.OrderItem) error {
	plan := reservationsFromItems(items)

	for _, res := range plan {
		stock, err := r.ledger.LockStock(ctx, tx, res.MerchandiseID)
		if err != nil {
			if errors.Is(err, storage.ErrMerchNotFound) {
				return &NotFoundError{Entity: "merchandise", ID: res.MerchandiseID}
			}
			return err
		}
		if stock < res.Quantity {
			return &InsufficientStockError{
				MerchandiseID: res.MerchandiseID,
				Name:          res.Name,
				Available:     stock,
				Requested:     res.Quantity,
			}
		}
	}

	for _, res := range plan {
		if err := r.ledger.Reserve(ctx, tx, res.MerchandiseID, res.Quantity); err != nil {
			return fmt.Errorf("reserve %d: %w", res.MerchandiseID, err)
		}
	}
	return nil
}
