package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/ojachat/ojachat/internal/order"
	"github.com/ojachat/ojachat/internal/stats"
	"github.com/ojachat/ojachat/internal/supabase"
)

const defaultPageSize = 50

// AuditLog is one row of the audit_logs table.
type AuditLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Detail    string    `json:"detail,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemLog is one row of the system_logs table.
type SystemLog struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRow is the admin view of a profile.
type UserRow struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows and pages admin list queries. Zero values mean
// "no constraint".
type ListFilter struct {
	UserID    string
	Action    string
	Level     string
	Search    string
	From      time.Time
	To        time.Time
	SortBy    string
	Ascending bool
	Limit     int
	Offset    int
}

// Service answers admin dashboard queries. Row data comes from Supabase with
// the service-role key; aggregate statistics come from the projected store.
type Service struct {
	client *supabase.Client
	stats  stats.Store
}

func NewService(client *supabase.Client, statsStore stats.Store) *Service {
	return &Service{client: client, stats: statsStore}
}

func (f ListFilter) apply(q *supabase.Query, defaultSort string) *supabase.Query {
	if f.UserID != "" {
		q = q.Eq("user_id", f.UserID)
	}
	if !f.From.IsZero() {
		q = q.Gte("created_at", f.From.Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q = q.Lte("created_at", f.To.Format(time.RFC3339))
	}

	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = defaultSort
	}
	q = q.Order(sortBy, f.Ascending)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	q = q.Limit(limit)
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q
}

// AuditLogs lists audit entries, newest first by default.
func (s *Service) AuditLogs(ctx context.Context, f ListFilter) ([]AuditLog, error) {
	q := s.client.From("audit_logs")
	if f.Action != "" {
		q = q.Eq("action", f.Action)
	}
	var rows []AuditLog
	if err := f.apply(q, "created_at").Get(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return rows, nil
}

// SystemLogs lists system log entries.
func (s *Service) SystemLogs(ctx context.Context, f ListFilter) ([]SystemLog, error) {
	q := s.client.From("system_logs")
	if f.Level != "" {
		q = q.Eq("level", f.Level)
	}
	if f.Search != "" {
		q = q.ILike("message", "%"+f.Search+"%")
	}
	var rows []SystemLog
	if err := f.apply(q, "created_at").Get(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list system logs: %w", err)
	}
	return rows, nil
}

// Orders lists orders across all users. Status goes through the Action
// filter field to keep one filter type for every list.
func (s *Service) Orders(ctx context.Context, f ListFilter) ([]order.Order, error) {
	q := s.client.From("orders")
	if f.Action != "" {
		q = q.Eq("status", f.Action)
	}
	var rows []order.Order
	if err := f.apply(q, "created_at").Get(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return rows, nil
}

// Users lists profiles.
func (s *Service) Users(ctx context.Context, f ListFilter) ([]UserRow, error) {
	q := s.client.From("profiles")
	if f.Search != "" {
		q = q.ILike("full_name", "%"+f.Search+"%")
	}
	var rows []UserRow
	if err := f.apply(q, "created_at").Get(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return rows, nil
}

// Dashboard bundles the projected statistics for the admin landing page.
type Dashboard struct {
	Totals   stats.Overview       `json:"totals"`
	Daily    []stats.DailyStat    `json:"daily"`
	Features []stats.FeatureUsage `json:"features"`
}

// Dashboard returns totals and the last 30 days of activity, built entirely
// from projected events rather than sampled or simulated numbers.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	totals, err := s.stats.Totals()
	if err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}
	now := time.Now()
	daily, err := s.stats.Daily(now.AddDate(0, 0, -30), now)
	if err != nil {
		return nil, fmt.Errorf("dashboard daily: %w", err)
	}
	features, err := s.stats.TopFeatures(10)
	if err != nil {
		return nil, fmt.Errorf("dashboard features: %w", err)
	}
	return &Dashboard{Totals: totals, Daily: daily, Features: features}, nil
}
