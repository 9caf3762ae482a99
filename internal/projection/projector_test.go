package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojachat/ojachat/internal/events"
	"github.com/ojachat/ojachat/internal/stats"
)

func encode(t *testing.T, eventType, userID string, payload any) []byte {
	t.Helper()
	event, err := events.New(eventType, userID, payload)
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func TestHandleEvent_OrderPlaced(t *testing.T) {
	store := stats.NewMemoryStore()
	p := NewProjector(store)

	placedAt := time.Date(2026, 8, 10, 14, 0, 0, 0, time.UTC)
	raw := encode(t, events.TypeOrderPlaced, "u-1", events.OrderPlaced{
		OrderID:  "o-1",
		UserID:   "u-1",
		Items:    []events.OrderLine{{ProductID: "p1", Quantity: 2, Price: 45000}},
		Total:    90000,
		PlacedAt: placedAt,
	})

	require.NoError(t, p.HandleEvent(context.Background(), []byte("u-1"), raw))

	totals, err := store.Totals()
	require.NoError(t, err)
	assert.Equal(t, 1, totals.TotalOrders)
	assert.Equal(t, 90000, totals.TotalRevenue)

	orders := store.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "o-1", orders[0].OrderID)
	assert.Equal(t, 1, orders[0].ItemCount)
}

func TestHandleEvent_UsageTracked(t *testing.T) {
	store := stats.NewMemoryStore()
	p := NewProjector(store)

	for i := 0; i < 3; i++ {
		raw := encode(t, events.TypeUsageTracked, "u-1", events.UsageTracked{
			UserID:    "u-1",
			Feature:   "chat_messages",
			Amount:    1,
			TrackedAt: time.Now(),
		})
		require.NoError(t, p.HandleEvent(context.Background(), nil, raw))
	}

	top, err := store.TopFeatures(5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, stats.FeatureUsage{Feature: "chat_messages", Count: 3}, top[0])
}

func TestHandleEvent_RedeliveryDoesNotDoubleCount(t *testing.T) {
	store := stats.NewMemoryStore()
	p := NewProjector(store)

	raw := encode(t, events.TypeOrderPlaced, "u-1", events.OrderPlaced{
		OrderID: "o-1", UserID: "u-1", Total: 5000, PlacedAt: time.Now(),
	})

	require.NoError(t, p.HandleEvent(context.Background(), nil, raw))
	require.NoError(t, p.HandleEvent(context.Background(), nil, raw))

	totals, err := store.Totals()
	require.NoError(t, err)
	assert.Equal(t, 1, totals.TotalOrders)
	assert.Equal(t, 5000, totals.TotalRevenue)
}

func TestHandleEvent_SessionStarted(t *testing.T) {
	store := stats.NewMemoryStore()
	p := NewProjector(store)

	raw := encode(t, events.TypeSessionStarted, "u-1", events.SessionStarted{
		SessionID: "session-1",
		UserID:    "u-1",
		StartedAt: time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, p.HandleEvent(context.Background(), nil, raw))

	daily, err := store.Daily(
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 1, daily[0].Sessions)
}

func TestHandleEvent_UnknownTypeSkipped(t *testing.T) {
	p := NewProjector(stats.NewMemoryStore())

	raw := encode(t, "product.viewed", "u-1", map[string]string{"product_id": "p1"})
	assert.NoError(t, p.HandleEvent(context.Background(), nil, raw))
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	p := NewProjector(stats.NewMemoryStore())

	assert.Error(t, p.HandleEvent(context.Background(), nil, []byte("{not json")))
}

func TestDaily_MergesOrdersAndSessions(t *testing.T) {
	store := stats.NewMemoryStore()
	p := NewProjector(store)

	day := time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.HandleEvent(context.Background(), nil, encode(t, events.TypeOrderPlaced, "u-1", events.OrderPlaced{
		OrderID: "o-1", UserID: "u-1", Total: 2000, PlacedAt: day.Add(10 * time.Hour),
	})))
	require.NoError(t, p.HandleEvent(context.Background(), nil, encode(t, events.TypeSessionStarted, "u-2", events.SessionStarted{
		SessionID: "session-2", UserID: "u-2", StartedAt: day.Add(11 * time.Hour),
	})))

	daily, err := store.Daily(day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 1, daily[0].Orders)
	assert.Equal(t, 2000, daily[0].Revenue)
	assert.Equal(t, 1, daily[0].Sessions)
}
