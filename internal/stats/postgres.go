package stats

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps projected statistics in PostgreSQL. Every write is an
// upsert keyed on the event id, so replaying a topic from offset zero leaves
// the tables unchanged.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a statistics store on an open connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects and pings.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) RecordOrder(eventID string, rec OrderRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO stats_orders (event_id, order_id, user_id, item_count, total, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, rec.OrderID, rec.UserID, rec.ItemCount, rec.Total, rec.PlacedAt)
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordUsage(eventID, feature string, amount int, at time.Time) error {
	res, err := s.db.Exec(`
		INSERT INTO stats_usage_events (event_id, feature, amount, tracked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, feature, amount, at)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	// Bump the rollup only when the event row was actually new.
	inserted, err := res.RowsAffected()
	if err != nil || inserted == 0 {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO stats_feature_usage (feature, count)
		VALUES ($1, $2)
		ON CONFLICT (feature) DO UPDATE SET count = stats_feature_usage.count + EXCLUDED.count
	`, feature, amount)
	if err != nil {
		return fmt.Errorf("roll up usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordSession(eventID, userID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO stats_sessions (event_id, user_id, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, userID, at)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Daily aggregates orders, revenue and chat sessions per calendar day over
// the given window.
func (s *PostgresStore) Daily(from, to time.Time) ([]DailyStat, error) {
	rows, err := s.db.Query(`
		SELECT day, SUM(orders), SUM(revenue), SUM(sessions) FROM (
			SELECT date_trunc('day', placed_at) AS day, COUNT(*) AS orders, SUM(total) AS revenue, 0 AS sessions
			FROM stats_orders WHERE placed_at >= $1 AND placed_at < $2 GROUP BY 1
			UNION ALL
			SELECT date_trunc('day', started_at) AS day, 0, 0, COUNT(*)
			FROM stats_sessions WHERE started_at >= $1 AND started_at < $2 GROUP BY 1
		) merged
		GROUP BY day ORDER BY day
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Day, &d.Orders, &d.Revenue, &d.Sessions); err != nil {
			log.Printf("[Stats] Error scanning daily row: %v", err)
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TopFeatures(limit int) ([]FeatureUsage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT feature, count FROM stats_feature_usage
		ORDER BY count DESC, feature LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query feature usage: %w", err)
	}
	defer rows.Close()

	var out []FeatureUsage
	for rows.Next() {
		var f FeatureUsage
		if err := rows.Scan(&f.Feature, &f.Count); err != nil {
			log.Printf("[Stats] Error scanning feature row: %v", err)
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Totals() (Overview, error) {
	var o Overview
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM stats_orders),
			(SELECT COALESCE(SUM(total), 0) FROM stats_orders),
			(SELECT COUNT(*) FROM stats_sessions)
	`).Scan(&o.TotalOrders, &o.TotalRevenue, &o.TotalSessions)
	if err != nil {
		return Overview{}, fmt.Errorf("query totals: %w", err)
	}
	return o, nil
}
