package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/event-shop/internal/service"
	"github.com/linemk/event-shop/internal/storage"
)

// CreateOrderItem - позиция в запросе на оформление заказа
type CreateOrderItem struct {
	MerchandiseID int64 `json:"merchandise_id" validate:"required,gt=0"`
	Quantity      int   `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest - тело POST /api/orders
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderHandler обрабатывает POST /api/orders
func CreateOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			badRequest(w, logger, "invalid request")
			return
		}
		// Валидация структуры запроса с использованием validator
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			badRequest(w, logger, "validation error")
			return
		}

		items := make([]service.ItemRequest, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, service.ItemRequest{MerchandiseID: it.MerchandiseID, Quantity: it.Quantity})
		}

		order, err := orders.CreateOrder(r.Context(), userID, items)
		if err != nil {
			logger.Warn("failed to create order", slog.Int64("userID", userID), slog.Any("error", err))
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// MyOrdersHandler обрабатывает GET /api/orders/my
func MyOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MyOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		filter, ok := orderFilterFromQuery(w, r, logger)
		if !ok {
			return
		}

		list, err := orders.ListUserOrders(r.Context(), userID, filter)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, list)
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		orderID, ok := idFromPath(r, "id")
		if !ok {
			badRequest(w, logger, "invalid order id")
			return
		}

		order, err := orders.GetOrder(r.Context(), userID, orderID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, order)
	}
}

func orderFilterFromQuery(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (storage.OrderFilter, bool) {
	limit, offset, err := pageFromQuery(r)
	if err != nil {
		badRequest(w, logger, err.Error())
		return storage.OrderFilter{}, false
	}

	status := models.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w, logger, service.ErrInvalidStatus.Error())
		return storage.OrderFilter{}, false
	}

	return storage.OrderFilter{Status: status, Limit: limit, Offset: offset}, true
}
