package order

import (
	"time"

	"github.com/google/uuid"
)

const EventOrderCompleted = "OrderCompleted"

// Record is what a committed checkout emits for receipt rendering and
// notification.
type Record struct {
	Order    Order  `json:"order"`
	Currency string `json:"currency"`
}

// Event is the envelope published for downstream consumers.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Record    `json:"data"`
}

func NewRecord(o Order) Record {
	return Record{Order: o, Currency: "INR"}
}

func NewCompletedEvent(r Record) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       EventOrderCompleted,
		OccurredAt: r.Order.CreatedAt,
		Data:       r,
	}
}

func (e Event) EventType() string { return e.Type }
