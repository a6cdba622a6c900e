package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/example/clinic-pos/internal/config"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/email"
	"github.com/example/clinic-pos/internal/infrastructure/kafka"
	"github.com/example/clinic-pos/internal/notification"
)

// Dedicated consumer group so receipts are mailed once per order no matter
// how many other consumers read the topic.
const consumerGroup = "receipt-notifier"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notifier").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "notifier").Logger()
	}
	if !cfg.KafkaEnabled() {
		logger.Fatal().Msg("KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group", consumerGroup).
		Str("smtp", cfg.SMTPHost+":"+cfg.SMTPPort).
		Msg("starting receipt notifier")

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(emailSvc, logger)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup, logger).
		OnlyEventType(order.EventOrderCompleted)
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("consumer stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
}
