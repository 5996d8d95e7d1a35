package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linemk/event-shop/internal/app/handlers"
	"github.com/linemk/event-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/event-shop/internal/lib/logger/handlers/urllog"
)

// NewRouter собирает маршруты API. metricsHandler может быть nil.
func NewRouter(log *slog.Logger, jwtSecret string, svc Services, metricsHandler http.Handler) http.Handler {
	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// публичные эндпоинты
	router.Get("/api/merchandise", handlers.ListMerchHandler(log, svc.Merch))
	router.Post("/api/payments/webhook", handlers.PaymentWebhookHandler(log, svc.Payments))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(jwtSecret))

		r.Post("/api/orders", handlers.CreateOrderHandler(log, svc.Orders))
		r.Get("/api/orders/my", handlers.MyOrdersHandler(log, svc.Orders))
		r.Get("/api/orders/{id}", handlers.GetOrderHandler(log, svc.Orders))
		r.Post("/api/payments/intents", handlers.CreatePaymentIntentHandler(log, svc.Payments))

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(jwtmiddleware.RequireAdmin(log, svc.Users))

			r.Get("/orders", handlers.AllOrdersHandler(log, svc.Orders))
			r.Get("/orders/stats", handlers.OrderStatsHandler(log, svc.Orders))
			r.Patch("/orders/{id}/status", handlers.UpdateOrderStatusHandler(log, svc.Reconciler))
			r.Post("/merchandise", handlers.CreateMerchHandler(log, svc.Merch))
		})
	})

	return router
}
