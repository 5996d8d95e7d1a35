package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/event-shop/internal/domain/models"
)

// PaymentStorage описывает методы для работы с платежами.
type PaymentStorage interface {
	// CreatePayment сохраняет платёж. Повторный payment_intent_id даёт ErrDuplicate.
	CreatePayment(ctx context.Context, p *models.Payment) error
	// GetPendingPayment ищет незавершённый платёж за заказ или регистрацию.
	// Задаётся ровно один из идентификаторов. Нет такого платежа - ErrPaymentNotFound.
	GetPendingPayment(ctx context.Context, orderID, registrationID *int64) (*models.Payment, error)
	// LockPaymentByIntentIDTx блокирует платёж по идентификатору intent у провайдера.
	LockPaymentByIntentIDTx(ctx context.Context, tx *sql.Tx, intentID string) (*models.Payment, error)
	// UpdatePaymentStatus меняет статус платежа в транзакции.
	UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PaymentStatus) error
}

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) PaymentStorage {
	return &paymentRepository{db: db}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (r *paymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO payments (payment_intent_id, amount, currency, status, payment_type, user_id, order_id, registration_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		p.PaymentIntentID, p.Amount, p.Currency, p.Status, p.Type, p.UserID, nullInt64(p.OrderID), nullInt64(p.RegistrationID),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

const paymentColumns = "id, payment_intent_id, amount, currency, status, payment_type, user_id, order_id, registration_id, created_at, updated_at"

func scanPayment(row *sql.Row) (*models.Payment, error) {
	p := &models.Payment{}
	var orderID, registrationID sql.NullInt64
	err := row.Scan(&p.ID, &p.PaymentIntentID, &p.Amount, &p.Currency, &p.Status, &p.Type, &p.UserID, &orderID, &registrationID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		p.OrderID = &orderID.Int64
	}
	if registrationID.Valid {
		p.RegistrationID = &registrationID.Int64
	}
	return p, nil
}

func (r *paymentRepository) GetPendingPayment(ctx context.Context, orderID, registrationID *int64) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments WHERE status = $1 AND (order_id = $2 OR registration_id = $3)
		 ORDER BY id DESC LIMIT 1`,
		models.PaymentStatusPending, nullInt64(orderID), nullInt64(registrationID),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get pending payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) LockPaymentByIntentIDTx(ctx context.Context, tx *sql.Tx, intentID string) (*models.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments WHERE payment_intent_id = $1 FOR UPDATE`,
		intentID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		if isLockNotAvailable(err) {
			return nil, fmt.Errorf("lock payment %s: %w", intentID, ErrLockTimeout)
		}
		return nil, fmt.Errorf("lock payment %s: %w", intentID, err)
	}
	return p, nil
}

func (r *paymentRepository) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PaymentStatus) error {
	res, err := tx.ExecContext(ctx, "UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
