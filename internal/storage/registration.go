package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/event-shop/internal/domain/models"
)

// RegistrationStorage - регистрации на мероприятия в объёме, нужном для оплаты.
type RegistrationStorage interface {
	// GetRegistrationByID возвращает регистрацию вместе с ценой мероприятия.
	GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error)
	// MarkRegistrationPaidTx переводит регистрацию в registered с оплатой paid.
	MarkRegistrationPaidTx(ctx context.Context, tx *sql.Tx, id int64) error
}

type registrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) RegistrationStorage {
	return &registrationRepository{db: db}
}

func (r *registrationRepository) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	reg := &models.Registration{}
	err := r.db.QueryRowContext(ctx,
		`SELECT r.id, r.user_id, r.event_id, e.price, r.status, r.payment_status, r.created_at, r.updated_at
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.id = $1`,
		id,
	).Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.EventPrice, &reg.Status, &reg.PaymentStatus, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration %d: %w", id, err)
	}
	return reg, nil
}

func (r *registrationRepository) MarkRegistrationPaidTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET payment_status = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		models.PaymentStatusPaid, models.RegistrationStatusRegistered, id)
	if err != nil {
		return fmt.Errorf("mark registration paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
