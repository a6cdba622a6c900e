package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/clinic-pos/internal/domain/order"
)

// Mailer is satisfied by email.Service.
type Mailer interface {
	SendReceipt(to string, rec order.Record) error
}

// Handler turns OrderCompleted events into receipt emails.
type Handler struct {
	mailer Mailer
	logger zerolog.Logger
}

func NewHandler(mailer Mailer, logger zerolog.Logger) *Handler {
	return &Handler{
		mailer: mailer,
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event order.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal event %s: %w", key, err)
	}

	if event.Type != order.EventOrderCompleted {
		return nil
	}
	return h.handleOrderCompleted(event)
}

func (h *Handler) handleOrderCompleted(event order.Event) error {
	o := event.Data.Order
	log := h.logger.With().Str("order_id", o.ID).Str("order_number", o.Number).Logger()

	if o.CustomerEmail == "" {
		log.Debug().Msg("no customer email, receipt skipped")
		return nil
	}

	if err := h.mailer.SendReceipt(o.CustomerEmail, event.Data); err != nil {
		return err
	}

	log.Info().Str("to", o.CustomerEmail).Msg("receipt sent")
	return nil
}
