// Package event defines the envelope for storefront domain events.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderConfirmed     = "OrderConfirmed"
	TypePendingOrderQueued = "PendingOrderQueued"
	TypeCartCleared        = "CartCleared"
	TypeCheckoutFailed     = "CheckoutFailed"
)

// Event is the envelope written to the event topic
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
}

// New wraps data in an envelope with a fresh id
func New(eventType, aggregateID string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	return Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		Data:        raw,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Publisher delivers events to subscribers
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }

// CheckoutFailed is the payload of TypeCheckoutFailed
type CheckoutFailed struct {
	AttemptID string    `json:"attempt_id"`
	Method    string    `json:"method"`
	State     string    `json:"state"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// CartCleared is the payload of TypeCartCleared
type CartCleared struct {
	SessionID string    `json:"session_id,omitempty"`
	OrderID   string    `json:"order_id"`
	ClearedAt time.Time `json:"cleared_at"`
}
