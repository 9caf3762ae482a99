// Package events defines the domain events the platform publishes for the
// analytics/projection pipeline.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderPlaced    = "OrderPlaced"
	TypeUsageTracked   = "UsageTracked"
	TypeSessionStarted = "SessionStarted"
)

// Event is the envelope every published event travels in.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	UserID    string          `json:"user_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderPlaced is emitted when checkout snapshots a cart into an order.
type OrderPlaced struct {
	OrderID  string      `json:"order_id"`
	UserID   string      `json:"user_id"`
	Items    []OrderLine `json:"items"`
	Total    int         `json:"total"`
	PlacedAt time.Time   `json:"placed_at"`
}

// OrderLine is one snapshotted cart line inside an order event.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
	Color     string `json:"color,omitempty"`
}

// UsageTracked is emitted alongside every usage-counter increment.
type UsageTracked struct {
	UserID    string    `json:"user_id"`
	Feature   string    `json:"feature"`
	Amount    int       `json:"amount"`
	TrackedAt time.Time `json:"tracked_at"`
}

// SessionStarted is emitted when a user opens a new chat session.
type SessionStarted struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// Publisher delivers events to the stream. A nil Publisher is valid and
// drops events, so callers need no nil checks at every emit site.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// New wraps a payload in an envelope.
func New(eventType, userID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Emit builds and publishes in one step, logging nothing and returning the
// publish error to the caller.
func Emit(ctx context.Context, p Publisher, eventType, userID string, payload any) error {
	if p == nil {
		return nil
	}
	event, err := New(eventType, userID, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, event)
}
