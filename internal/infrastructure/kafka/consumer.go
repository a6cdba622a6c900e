package kafka

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	// eventType, when set, skips messages whose event-type header names a
	// different event. Messages without the header are always handled.
	eventType string
	// retryDelay is the pause after a failed fetch.
	retryDelay time.Duration
	logger     zerolog.Logger
}

const defaultRetryDelay = time.Second

func NewConsumer(brokers []string, topic, groupID string, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, logger.With().Str("topic", topic).Str("group", groupID).Logger())
}

func NewConsumerWithReader(r MessageReader, logger zerolog.Logger) *Consumer {
	return &Consumer{reader: r, retryDelay: defaultRetryDelay, logger: logger}
}

// OnlyEventType restricts the consumer to one event type.
func (c *Consumer) OnlyEventType(eventType string) *Consumer {
	c.eventType = eventType
	return c
}

// Consume blocks until ctx is done. Every fetched message is committed after
// the handler returns, even on error; receipts are best effort.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Dur("retry_in", c.retryDelay).Msg("fetch message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}

		if c.wants(msg) {
			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				c.logger.Error().Err(err).
					Str("key", string(msg.Key)).
					Int64("offset", msg.Offset).
					Msg("handle message")
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("commit message")
		}
	}
}

func (c *Consumer) wants(msg kafka.Message) bool {
	if c.eventType == "" {
		return true
	}
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value) == c.eventType
		}
	}
	return true
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
