package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/clinic-pos/internal/domain/order"
)

// EventPublisher is satisfied by kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaSink publishes an OrderCompleted event keyed by order ID.
type KafkaSink struct {
	publisher EventPublisher
}

func NewKafkaSink(p EventPublisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, rec order.Record) error {
	return s.publisher.Publish(ctx, rec.Order.ID, order.NewCompletedEvent(rec))
}

// LogSink writes a one-line summary of each record. Used when no broker is
// configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, rec order.Record) error {
	o := rec.Order
	s.logger.Info().
		Str("event", order.EventOrderCompleted).
		Str("order_id", o.ID).
		Str("order_number", o.Number).
		Str("total", o.Total.StringFixed(2)).
		Str("currency", rec.Currency).
		Int("lines", len(o.Lines)).
		Msg("order completed")
	return nil
}
