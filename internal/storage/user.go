package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/event-shop/internal/domain/models"
)

type UserStorage interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserStorage {
	return &userRepository{db: db}
}

// получение пользователя для проверки прав
func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	row := r.db.QueryRowContext(ctx, "SELECT id, email, full_name, is_admin, is_active FROM users WHERE id = $1", id)
	if err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.IsAdmin, &user.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return user, nil
}
