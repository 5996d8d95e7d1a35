package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/storage"
)

var ErrMerchExists = errors.New("merchandise already exists")

// MerchService - каталог мерча
type MerchService interface {
	List(ctx context.Context, limit, offset int) ([]*models.Merchandise, error)
	Create(ctx context.Context, m *models.Merchandise) (*models.Merchandise, error)
}

type merchService struct {
	log       *slog.Logger
	merchRepo storage.MerchStorage
}

func NewMerchService(log *slog.Logger, merchRepo storage.MerchStorage) MerchService {
	return &merchService{log: log, merchRepo: merchRepo}
}

func (s *merchService) List(ctx context.Context, limit, offset int) ([]*models.Merchandise, error) {
	const op = "service.MerchService.List"

	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.merchRepo.ListMerch(ctx, limit, offset)
	if err != nil {
		s.log.Error("failed to list merchandise", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func (s *merchService) Create(ctx context.Context, m *models.Merchandise) (*models.Merchandise, error) {
	const op = "service.MerchService.Create"
	logger := s.log.With(slog.String("op", op), slog.String("name", m.Name))

	if m.Stock < 0 || m.Price.IsNegative() {
		return nil, ErrInvalidQuantity
	}

	created, err := s.merchRepo.CreateMerch(ctx, m)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrMerchExists
		}
		logger.Error("failed to create merchandise", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("merchandise created", slog.Int64("id", created.ID))
	return created, nil
}
