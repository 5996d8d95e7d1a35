package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher публикует доменные события. Вызывается после коммита,
// ошибка публикации не откатывает уже зафиксированные изменения.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// messageWriter - то, что нужно от *kafka.Writer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   messageWriter
	log *slog.Logger
}

// NewKafkaPublisher создаёт писателя в topic. Ключ сообщения - CorrelationID,
// так события одного заказа попадают в одну партицию.
func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func newKafkaPublisherWithWriter(log *slog.Logger, w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	const op = "events.KafkaPublisher.Publish"

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s: marshal envelope: %w", op, err)
	}

	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: b,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: write %s: %w", op, env.EventType, err)
	}

	p.log.Debug("event published",
		slog.String("op", op),
		slog.String("event_type", env.EventType),
		slog.String("event_id", env.EventID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher используется, когда брокеры не настроены
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NopPublisher) Close() error { return nil }
