package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/event-shop/internal/domain/models"
)

// MerchStorage описывает методы для работы с каталогом мерча.
// Остаток здесь только читается, изменения идут через InventoryLedger.
type MerchStorage interface {
	// GetMerchByID получает товар по идентификатору.
	GetMerchByID(ctx context.Context, id int64) (*models.Merchandise, error)
	// ListMerch возвращает страницу каталога, упорядоченную по id.
	ListMerch(ctx context.Context, limit, offset int) ([]*models.Merchandise, error)
	// CreateMerch добавляет товар и заполняет ID и временные метки.
	CreateMerch(ctx context.Context, m *models.Merchandise) (*models.Merchandise, error)
}

type merchRepository struct {
	db *sql.DB
}

// NewMerchRepository создаёт новый репозиторий мерча.
func NewMerchRepository(db *sql.DB) MerchStorage {
	return &merchRepository{db: db}
}

const merchColumns = "id, name, COALESCE(description, ''), price, stock, image_url, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMerch(row rowScanner) (*models.Merchandise, error) {
	m := &models.Merchandise{}
	var imageURL sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Price, &m.Stock, &imageURL, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if imageURL.Valid {
		m.ImageURL = &imageURL.String
	}
	return m, nil
}

func (r *merchRepository) GetMerchByID(ctx context.Context, id int64) (*models.Merchandise, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+merchColumns+" FROM merchandise WHERE id = $1", id)
	m, err := scanMerch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMerchNotFound
		}
		return nil, fmt.Errorf("get merchandise %d: %w", id, err)
	}
	return m, nil
}

func (r *merchRepository) ListMerch(ctx context.Context, limit, offset int) ([]*models.Merchandise, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+merchColumns+" FROM merchandise ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list merchandise: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Merchandise, 0)
	for rows.Next() {
		m, err := scanMerch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merchandise: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *merchRepository) CreateMerch(ctx context.Context, m *models.Merchandise) (*models.Merchandise, error) {
	var imageURL sql.NullString
	if m.ImageURL != nil {
		imageURL = sql.NullString{String: *m.ImageURL, Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO merchandise (name, description, price, stock, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		m.Name, m.Description, m.Price, m.Stock, imageURL,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create merchandise: %w", err)
	}
	return m, nil
}
