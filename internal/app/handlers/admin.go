package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/event-shop/internal/service"
)

// UpdateStatusRequest - тело PATCH /api/admin/orders/{id}/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped delivered cancelled"`
}

// UpdateOrderStatusHandler обрабатывает PATCH /api/admin/orders/{id}/status.
// Доступ администратора проверяет RequireAdmin.
func UpdateOrderStatusHandler(log *slog.Logger, reconciler service.StatusReconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		actorID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		orderID, ok := idFromPath(r, "id")
		if !ok {
			badRequest(w, logger, "invalid order id")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			badRequest(w, logger, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			badRequest(w, logger, service.ErrInvalidStatus.Error())
			return
		}

		order, err := reconciler.UpdateStatus(r.Context(), actorID, orderID, models.OrderStatus(req.Status))
		if err != nil {
			logger.Warn("status update rejected",
				slog.Int64("orderID", orderID),
				slog.String("status", req.Status),
				slog.Any("error", err),
			)
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, order)
	}
}

// AllOrdersHandler обрабатывает GET /api/admin/orders
func AllOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AllOrdersHandler"
		logger := log.With(slog.String("op", op))

		filter, ok := orderFilterFromQuery(w, r, logger)
		if !ok {
			return
		}

		list, err := orders.ListAllOrders(r.Context(), filter)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, list)
	}
}

// OrderStatsHandler обрабатывает GET /api/admin/orders/stats
func OrderStatsHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.OrderStatsHandler"
		logger := log.With(slog.String("op", op))

		stats, err := orders.GetStats(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, stats)
	}
}
