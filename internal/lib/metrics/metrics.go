// Package metrics - счётчики заказов, переходов статусов и платежей на OpenTelemetry.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Стадии, на которых заказ может упереться в остаток
const (
	StageValidation   = "validation"
	StageCommit       = "commit"
	StageReactivation = "reactivation"
)

// Metrics - счётчики домена. Нулевой указатель допустим: все методы становятся no-op,
// это удобно в тестах сервисов.
type Metrics struct {
	ordersCreated   metric.Int64Counter
	transitions     metric.Int64Counter
	stockRejections metric.Int64Counter
	paymentsApplied metric.Int64Counter
}

// New регистрирует счётчики в meter
func New(meter metric.Meter) (*Metrics, error) {
	ordersCreated, err := meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of orders created"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"order_transitions_total",
		metric.WithDescription("Total number of order status transitions"),
	)
	if err != nil {
		return nil, err
	}

	stockRejections, err := meter.Int64Counter(
		"stock_rejections_total",
		metric.WithDescription("Total number of operations rejected because of insufficient stock"),
	)
	if err != nil {
		return nil, err
	}

	paymentsApplied, err := meter.Int64Counter(
		"payments_applied_total",
		metric.WithDescription("Total number of payment results applied"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersCreated:   ordersCreated,
		transitions:     transitions,
		stockRejections: stockRejections,
		paymentsApplied: paymentsApplied,
	}, nil
}

func (m *Metrics) OrderCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
}

// OrderTransition учитывает переход статуса. kind: plain, cancellation, reactivation.
func (m *Metrics) OrderTransition(ctx context.Context, kind, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("to", to),
	))
}

func (m *Metrics) StockRejected(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.stockRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// PaymentApplied учитывает результат платежа: succeeded, failed, duplicate.
func (m *Metrics) PaymentApplied(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
