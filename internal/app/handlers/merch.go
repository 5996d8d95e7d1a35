package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/service"
)

// CreateMerchRequest - тело POST /api/admin/merchandise
type CreateMerchRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	ImageURL    *string         `json:"image_url" validate:"omitempty,url"`
}

// ListMerchHandler обрабатывает GET /api/merchandise
func ListMerchHandler(log *slog.Logger, merch service.MerchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListMerchHandler"
		logger := log.With(slog.String("op", op))

		limit, offset, err := pageFromQuery(r)
		if err != nil {
			badRequest(w, logger, err.Error())
			return
		}

		items, err := merch.List(r.Context(), limit, offset)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, items)
	}
}

// CreateMerchHandler обрабатывает POST /api/admin/merchandise
func CreateMerchHandler(log *slog.Logger, merch service.MerchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateMerchHandler"
		logger := log.With(slog.String("op", op))

		var req CreateMerchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			badRequest(w, logger, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			badRequest(w, logger, "validation error")
			return
		}
		// validator не умеет сравнивать decimal
		if req.Price.IsNegative() {
			badRequest(w, logger, "price must not be negative")
			return
		}

		created, err := merch.Create(r.Context(), &models.Merchandise{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Stock:       req.Stock,
			ImageURL:    req.ImageURL,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusCreated, created)
	}
}
