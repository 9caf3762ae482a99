package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojachat/ojachat/internal/email"
	"github.com/ojachat/ojachat/internal/events"
)

type fakeMailer struct {
	sent []struct {
		to      string
		orderID string
		total   int
		items   []email.OrderItem
	}
	err error
}

func (f *fakeMailer) SendOrderConfirmation(to, orderID string, total int, items []email.OrderItem) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, struct {
		to      string
		orderID string
		total   int
		items   []email.OrderItem
	}{to, orderID, total, items})
	return nil
}

type fakeRecipients struct {
	emails map[string]string
	err    error
}

func (f *fakeRecipients) Email(ctx context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.emails[userID], nil
}

func orderPlacedEvent(t *testing.T) []byte {
	t.Helper()
	event, err := events.New(events.TypeOrderPlaced, "u-1", events.OrderPlaced{
		OrderID: "o-1",
		UserID:  "u-1",
		Items: []events.OrderLine{
			{ProductID: "p1", Name: "Air Max", Quantity: 2, Price: 45000},
		},
		Total:    90000,
		PlacedAt: time.Now(),
	})
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func TestHandleEvent_SendsConfirmation(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewHandler(mailer, &fakeRecipients{emails: map[string]string{"u-1": "ada@example.com"}})

	require.NoError(t, h.HandleEvent(context.Background(), nil, orderPlacedEvent(t)))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ada@example.com", mailer.sent[0].to)
	assert.Equal(t, "o-1", mailer.sent[0].orderID)
	assert.Equal(t, 90000, mailer.sent[0].total)
	require.Len(t, mailer.sent[0].items, 1)
	assert.Equal(t, "Air Max", mailer.sent[0].items[0].Name)
}

func TestHandleEvent_IgnoresOtherEventTypes(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewHandler(mailer, &fakeRecipients{})

	event, err := events.New(events.TypeSessionStarted, "u-1", events.SessionStarted{SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, h.HandleEvent(context.Background(), nil, raw))
	assert.Empty(t, mailer.sent)
}

func TestHandleEvent_NoEmailOnFile(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewHandler(mailer, &fakeRecipients{emails: map[string]string{}})

	require.NoError(t, h.HandleEvent(context.Background(), nil, orderPlacedEvent(t)))
	assert.Empty(t, mailer.sent)
}

func TestHandleEvent_LookupErrorPropagates(t *testing.T) {
	h := NewHandler(&fakeMailer{}, &fakeRecipients{err: errors.New("profiles unavailable")})

	assert.Error(t, h.HandleEvent(context.Background(), nil, orderPlacedEvent(t)))
}

func TestHandleEvent_SendErrorPropagates(t *testing.T) {
	h := NewHandler(&fakeMailer{err: errors.New("smtp down")},
		&fakeRecipients{emails: map[string]string{"u-1": "ada@example.com"}})

	assert.Error(t, h.HandleEvent(context.Background(), nil, orderPlacedEvent(t)))
}

func TestHandleEvent_MalformedEvent(t *testing.T) {
	h := NewHandler(&fakeMailer{}, &fakeRecipients{})
	assert.Error(t, h.HandleEvent(context.Background(), nil, []byte("{broken")))
}
