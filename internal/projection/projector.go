package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ojachat/ojachat/internal/events"
	"github.com/ojachat/ojachat/internal/stats"
)

// Projector folds domain events from Kafka into the statistics read models
// served to the admin dashboard.
type Projector struct {
	store stats.Store
}

func NewProjector(store stats.Store) *Projector {
	return &Projector{store: store}
}

// HandleEvent is plugged into kafka.Consumer. Unknown event types are
// acknowledged and skipped so new producers can ship ahead of the projector.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event events.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	log.Printf("[Projector] Received event: %s (user: %s)", event.Type, event.UserID)

	switch event.Type {
	case events.TypeOrderPlaced:
		return p.handleOrderPlaced(event)
	case events.TypeUsageTracked:
		return p.handleUsageTracked(event)
	case events.TypeSessionStarted:
		return p.handleSessionStarted(event)
	default:
		log.Printf("[Projector] Skipping unknown event type: %s", event.Type)
		return nil
	}
}

func (p *Projector) handleOrderPlaced(event events.Event) error {
	var e events.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return fmt.Errorf("decode OrderPlaced: %w", err)
	}
	return p.store.RecordOrder(event.ID, stats.OrderRecord{
		OrderID:   e.OrderID,
		UserID:    e.UserID,
		ItemCount: len(e.Items),
		Total:     e.Total,
		PlacedAt:  e.PlacedAt,
	})
}

func (p *Projector) handleUsageTracked(event events.Event) error {
	var e events.UsageTracked
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return fmt.Errorf("decode UsageTracked: %w", err)
	}
	return p.store.RecordUsage(event.ID, e.Feature, e.Amount, e.TrackedAt)
}

func (p *Projector) handleSessionStarted(event events.Event) error {
	var e events.SessionStarted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return fmt.Errorf("decode SessionStarted: %w", err)
	}
	return p.store.RecordSession(event.ID, e.UserID, e.StartedAt)
}
