package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/linemk/event-shop/internal/payments"
	"github.com/linemk/event-shop/internal/service"
)

var validate = validator.New()

// ErrorResponse - тело ответа при ошибке
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError переводит ошибку сервиса в http-статус. Ошибки хранилища, включая
// исчерпанные повторы при ожидании блокировки, дают 500: детали остаются в логе,
// клиент получает общий текст.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		notFound     *service.NotFoundError
		insufficient *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &notFound):
		writeJSON(w, logger, http.StatusNotFound, ErrorResponse{Error: notFound.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: insufficient.Error()})
	case errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrPaymentTarget),
		errors.Is(err, service.ErrOrderNotPayable),
		errors.Is(err, service.ErrRegistrationNotPayable),
		errors.Is(err, service.ErrOrderTooLarge),
		errors.Is(err, payments.ErrInvalidSignature):
		writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: rootMessage(err)})
	case errors.Is(err, service.ErrMerchExists):
		writeJSON(w, logger, http.StatusConflict, ErrorResponse{Error: service.ErrMerchExists.Error()})
	default:
		logger.Error("internal error", slog.Any("error", err))
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// rootMessage возвращает текст sentinel-ошибки без префиксов op
func rootMessage(err error) string {
	for _, sentinel := range []error{
		service.ErrAlreadyCancelled,
		service.ErrInvalidStatus,
		service.ErrEmptyOrder,
		service.ErrInvalidQuantity,
		service.ErrPaymentTarget,
		service.ErrOrderNotPayable,
		service.ErrRegistrationNotPayable,
		service.ErrOrderTooLarge,
		payments.ErrInvalidSignature,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func badRequest(w http.ResponseWriter, logger *slog.Logger, msg string) {
	writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// pageFromQuery читает limit/offset; пустые значения дают 0, сервис подставит значения по умолчанию
func pageFromQuery(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	return limit, offset, nil
}

func idFromPath(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
