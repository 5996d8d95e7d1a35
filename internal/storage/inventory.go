package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InventoryLedger - единственное место, где меняется остаток мерча.
// Остаток никогда не уходит в минус: списание выполняется условным UPDATE,
// а в схеме стоит CHECK (stock >= 0).
type InventoryLedger interface {
	// CheckAvailability проверяет, хватает ли остатка. Только чтение, без блокировок.
	CheckAvailability(ctx context.Context, merchID int64, quantity int) (bool, error)
	// LockStock блокирует строку товара до конца транзакции и возвращает текущий остаток.
	LockStock(ctx context.Context, tx *sql.Tx, merchID int64) (int, error)
	// Reserve списывает quantity, если остатка хватает.
	Reserve(ctx context.Context, tx *sql.Tx, merchID int64, quantity int) error
	// Release возвращает quantity на склад.
	Release(ctx context.Context, tx *sql.Tx, merchID int64, quantity int) error
}

type inventoryLedger struct {
	db *sql.DB
}

func NewInventoryLedger(db *sql.DB) InventoryLedger {
	return &inventoryLedger{db: db}
}

func (l *inventoryLedger) CheckAvailability(ctx context.Context, merchID int64, quantity int) (bool, error) {
	var stock int
	err := l.db.QueryRowContext(ctx, "SELECT stock FROM merchandise WHERE id = $1", merchID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrMerchNotFound
		}
		return false, fmt.Errorf("check availability: %w", err)
	}
	return stock >= quantity, nil
}

func (l *inventoryLedger) LockStock(ctx context.Context, tx *sql.Tx, merchID int64) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx, "SELECT stock FROM merchandise WHERE id = $1 FOR UPDATE", merchID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrMerchNotFound
		}
		if isLockNotAvailable(err) {
			return 0, fmt.Errorf("lock stock %d: %w", merchID, ErrLockTimeout)
		}
		return 0, fmt.Errorf("lock stock %d: %w", merchID, err)
	}
	return stock, nil
}

// Reserve - атомарное списание с проверкой нижней границы.
// Ноль затронутых строк означает либо отсутствие товара, либо нехватку остатка,
// их различаем отдельным запросом внутри той же транзакции.
func (l *inventoryLedger) Reserve(ctx context.Context, tx *sql.Tx, merchID int64, quantity int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE merchandise
		 SET stock = stock - $1, updated_at = NOW()
		 WHERE id = $2 AND stock >= $1`,
		quantity, merchID)
	if err != nil {
		return fmt.Errorf("reserve stock %d: %w", merchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock %d: rows affected: %w", merchID, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM merchandise WHERE id = $1)", merchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("reserve stock %d: check exists: %w", merchID, err)
	}
	if !exists {
		return ErrMerchNotFound
	}
	return ErrInsufficientStock
}

func (l *inventoryLedger) Release(ctx context.Context, tx *sql.Tx, merchID int64, quantity int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE merchandise SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, merchID)
	if err != nil {
		return fmt.Errorf("release stock %d: %w", merchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release stock %d: rows affected: %w", merchID, err)
	}
	if affected == 0 {
		return ErrMerchNotFound
	}
	return nil
}
