package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ojachat/ojachat/internal/email"
	"github.com/ojachat/ojachat/internal/events"
	"github.com/ojachat/ojachat/internal/supabase"
)

// Mailer sends the order confirmation. Satisfied by email.Service.
type Mailer interface {
	SendOrderConfirmation(to, orderID string, total int, items []email.OrderItem) error
}

// RecipientLookup resolves a user id to an email address.
type RecipientLookup interface {
	Email(ctx context.Context, userID string) (string, error)
}

// Handler turns OrderPlaced events into confirmation emails.
type Handler struct {
	mailer     Mailer
	recipients RecipientLookup
}

func NewHandler(mailer Mailer, recipients RecipientLookup) *Handler {
	return &Handler{mailer: mailer, recipients: recipients}
}

// HandleEvent processes an event from Kafka. Events other than OrderPlaced
// are acknowledged without action.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event events.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	if event.Type != events.TypeOrderPlaced {
		return nil
	}
	return h.handleOrderPlaced(ctx, event)
}

func (h *Handler) handleOrderPlaced(ctx context.Context, event events.Event) error {
	var e events.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.OrderID, e.UserID)

	to, err := h.recipients.Email(ctx, e.UserID)
	if err != nil {
		// The user row may not be replicated yet; surface the error so the
		// consumer logs it and the message can be retried by re-consuming.
		return fmt.Errorf("resolve recipient for %s: %w", e.UserID, err)
	}
	if to == "" {
		log.Printf("[Notifier] No email on file for user %s, skipping", e.UserID)
		return nil
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, line := range e.Items {
		items[i] = email.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			Price:     line.Price,
			Color:     line.Color,
		}
	}

	if err := h.mailer.SendOrderConfirmation(to, e.OrderID, e.Total, items); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", to, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", to, e.OrderID)
	return nil
}

// SupabaseRecipients resolves recipients from the profiles table using the
// service-role client.
type SupabaseRecipients struct {
	client *supabase.Client
}

func NewSupabaseRecipients(client *supabase.Client) *SupabaseRecipients {
	return &SupabaseRecipients{client: client}
}

func (r *SupabaseRecipients) Email(ctx context.Context, userID string) (string, error) {
	var rows []struct {
		Email string `json:"email"`
	}
	err := r.client.From("profiles").Select("email").Eq("id", userID).Limit(1).Get(ctx, &rows)
	if err != nil {
		return "", fmt.Errorf("fetch profile email: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Email, nil
}
