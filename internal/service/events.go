package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
)

// Event is the JSON envelope relayed to Kafka.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

type eventWriter struct {
	topic string
}

// write adds an outbox row through tx so the event commits or rolls back
// with the change it describes.
func (w eventWriter) write(ctx context.Context, tx repository.Store, eventType, key string, at time.Time, data interface{}) error {
	if w.topic == "" {
		return nil
	}
	payload, err := json.Marshal(Event{Type: eventType, OccurredAt: at, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      w.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return fmt.Errorf("write outbox %s: %w", eventType, err)
	}
	return nil
}
