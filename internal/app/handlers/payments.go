package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/linemk/event-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/event-shop/internal/payments"
	"github.com/linemk/event-shop/internal/service"
)

// maxWebhookBody ограничивает тело вебхука, как рекомендует провайдер
const maxWebhookBody = 65536

// CreateIntentRequest - тело POST /api/payments/intents. Должно быть задано ровно одно поле.
type CreateIntentRequest struct {
	OrderID        *int64 `json:"order_id" validate:"omitempty,gt=0"`
	RegistrationID *int64 `json:"registration_id" validate:"omitempty,gt=0"`
}

// CreatePaymentIntentHandler обрабатывает POST /api/payments/intents
func CreatePaymentIntentHandler(log *slog.Logger, paymentSvc service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreatePaymentIntentHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			writeJSON(w, logger, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		var req CreateIntentRequest
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

		res, err := paymentSvc.CreatePaymentIntent(r.Context(), userID, service.PaymentTarget{
			OrderID:        req.OrderID,
			RegistrationID: req.RegistrationID,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusCreated, res)
	}
}

// PaymentWebhookHandler обрабатывает POST /api/payments/webhook. Без JWT: подлинность
// проверяется подписью Stripe-Signature.
func PaymentWebhookHandler(log *slog.Logger, paymentSvc service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PaymentWebhookHandler"
		logger := log.With(slog.String("op", op))

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			logger.Error("failed to read webhook body", slog.Any("error", err))
			badRequest(w, logger, "invalid request")
			return
		}

		// любой отказ - 400, провайдер повторит доставку; детали остаются в логе
		if err := paymentSvc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
			if errors.Is(err, payments.ErrInvalidSignature) {
				logger.Warn("webhook signature rejected", slog.Any("error", err))
				badRequest(w, logger, payments.ErrInvalidSignature.Error())
				return
			}
			logger.Error("webhook processing failed", slog.Any("error", err))
			badRequest(w, logger, "webhook processing failed")
			return
		}

		writeJSON(w, logger, http.StatusOK, map[string]bool{"received": true})
	}
}
