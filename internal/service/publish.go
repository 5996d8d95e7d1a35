package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/linemk/event-shop/internal/events"
)

const (
	producerName   = "event-shop"
	publishTimeout = 5 * time.Second
)

// publish отправляет событие после коммита. Ошибки только логируются:
// изменения уже зафиксированы, а событие носит уведомительный характер.
func publish(ctx context.Context, log *slog.Logger, pub events.Publisher, eventType string, correlationID int64, payload any) {
	env, err := events.NewEnvelope(eventType, producerName, correlationID, payload)
	if err != nil {
		log.Error("failed to build event", slog.String("event_type", eventType), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := pub.Publish(ctx, env); err != nil {
		log.Warn("failed to publish event",
			slog.String("event_type", eventType),
			slog.String("event_id", env.EventID),
			slog.Any("error", err),
		)
	}
}
