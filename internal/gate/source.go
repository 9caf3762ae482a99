package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ojachat/ojachat/internal/supabase"
)

// SupabaseSource reads subscription state from the remote store.
type SupabaseSource struct {
	client *supabase.Client
}

func NewSupabaseSource(client *supabase.Client) *SupabaseSource {
	return &SupabaseSource{client: client}
}

func (s *SupabaseSource) ActiveSubscription(ctx context.Context, userID string) (*Subscription, error) {
	var rows []Subscription
	err := s.client.From("user_subscriptions").
		Select("*,subscription_plans(*)").
		Eq("user_id", userID).
		Eq("status", "active").
		Order("created_at", false).
		Limit(1).
		Get(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoActiveSubscription
	}
	return &rows[0], nil
}

func (s *SupabaseSource) Usage(ctx context.Context, userID, feature string) (*UsageCounter, error) {
	var rows []UsageCounter
	err := s.client.From("subscription_usage").
		Select("*").
		Eq("user_id", userID).
		Eq("feature_name", feature).
		Limit(1).
		Get(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("fetch usage: %w", err)
	}
	if len(rows) == 0 {
		return &UsageCounter{UserID: userID, FeatureName: feature}, nil
	}
	return &rows[0], nil
}

func (s *SupabaseSource) IncrementUsage(ctx context.Context, userID, feature string, amount int, idempotencyKey string) error {
	err := s.client.RPC(ctx, "increment_feature_usage", map[string]any{
		"p_user_id":         userID,
		"p_feature_name":    feature,
		"p_amount":          amount,
		"p_idempotency_key": idempotencyKey,
	}, nil)
	if err == nil {
		return nil
	}

	// A conflict means this key was already applied; the increment stands.
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("increment usage: %w", err)
}
