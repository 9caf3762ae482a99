// Package order implements checkout: snapshotting a cart into the remote
// orders table and tracking order status from there on.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ojachat/ojachat/internal/cart"
	"github.com/ojachat/ojachat/internal/events"
	"github.com/ojachat/ojachat/internal/supabase"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrEmptyOrder       = errors.New("order must have at least one item")
	ErrInvalidStatus    = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	ErrOrderNotPaid     = errors.New("order must be paid before shipping")
	ErrOrderShipped     = errors.New("cannot cancel shipped order")
	ErrOrderCancelled   = errors.New("order is already cancelled")
)

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {},
	StatusCancelled: {},
}

// Item is one snapshotted cart line.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
	Color     string `json:"color,omitempty"`
}

// Order is a row in the remote orders table.
type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Items           []Item    `json:"items"`
	Total           int       `json:"total"`
	Status          Status    `json:"status"`
	DeliveryAddress string    `json:"delivery_address,omitempty"`
	PaymentLink     string    `json:"payment_link,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CanTransitionTo checks whether the order may move to the target status.
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusShipped && target == StatusCancelled:
		return ErrOrderShipped
	case (o.Status == StatusPaid || o.Status == StatusShipped) && target == StatusPaid:
		return ErrOrderAlreadyPaid
	case o.Status == StatusPending && target == StatusShipped:
		return ErrOrderNotPaid
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

type Service struct {
	client    *supabase.Client
	publisher events.Publisher
}

func NewService(client *supabase.Client, publisher events.Publisher) *Service {
	return &Service{client: client, publisher: publisher}
}

// PlaceOrder snapshots the cart into the orders table, clears the cart on
// success, and emits OrderPlaced. A publish failure does not undo the order.
func (s *Service) PlaceOrder(ctx context.Context, userID string, c *cart.Store, deliveryAddress string) (*Order, error) {
	lines := c.Items()
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	items := make([]Item, 0, len(lines))
	eventLines := make([]events.OrderLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, Item{
			ProductID: line.ID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			Price:     line.Price,
			Color:     line.Color,
		})
		eventLines = append(eventLines, events.OrderLine{
			ProductID: line.ID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			Price:     line.Price,
			Color:     line.Color,
		})
	}

	now := time.Now()
	order := Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           items,
		Total:           c.TotalAmount(),
		Status:          StatusPending,
		DeliveryAddress: deliveryAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var created []Order
	if err := s.client.From("orders").Insert(ctx, []Order{order}, &created); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	if len(created) > 0 {
		order = created[0]
	}

	c.Clear()

	err := events.Emit(ctx, s.publisher, events.TypeOrderPlaced, userID, events.OrderPlaced{
		OrderID:  order.ID,
		UserID:   userID,
		Items:    eventLines,
		Total:    order.Total,
		PlacedAt: now,
	})
	if err != nil {
		log.Printf("[Order] Failed to publish OrderPlaced for %s: %v", order.ID, err)
	}

	return &order, nil
}

// GetOrder fetches one order.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	var rows []Order
	err := s.client.From("orders").Eq("id", id).Limit(1).Get(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("fetch order: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrOrderNotFound
	}
	return &rows[0], nil
}

// ListOrders fetches a user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	var rows []Order
	err := s.client.From("orders").
		Eq("user_id", userID).
		Order("created_at", false).
		Get(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return rows, nil
}

// UpdateStatus applies a status transition after validating it.
func (s *Service) UpdateStatus(ctx context.Context, id string, target Status) (*Order, error) {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.CanTransitionTo(target) {
		return nil, current.transitionError(target)
	}

	patch := map[string]any{
		"status":     target,
		"updated_at": time.Now(),
	}
	var updated []Order
	if err := s.client.From("orders").Eq("id", id).Update(ctx, patch, &updated); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if len(updated) > 0 {
		return &updated[0], nil
	}
	current.Status = target
	return current, nil
}

// AttachPaymentLink records the generated payment link on the order and in
// the payment_links table.
func (s *Service) AttachPaymentLink(ctx context.Context, orderID, url string) error {
	err := s.client.From("payment_links").Insert(ctx, []map[string]any{{
		"id":         uuid.New().String(),
		"order_id":   orderID,
		"url":        url,
		"created_at": time.Now(),
	}}, nil)
	if err != nil {
		return fmt.Errorf("insert payment link: %w", err)
	}

	patch := map[string]any{"payment_link": url, "updated_at": time.Now()}
	if err := s.client.From("orders").Eq("id", orderID).Update(ctx, patch, nil); err != nil {
		return fmt.Errorf("attach payment link: %w", err)
	}
	return nil
}
