package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// AuditWriter appends audit_logs rows over a direct service-role Postgres
// connection, bypassing PostgREST so middleware writes cannot be blocked by
// row-level security.
type AuditWriter struct {
	db *sql.DB
}

func NewAuditWriter(db *sql.DB) *AuditWriter {
	return &AuditWriter{db: db}
}

// OpenAuditWriter connects and pings.
func OpenAuditWriter(dsn string) (*AuditWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	return NewAuditWriter(db), nil
}

// Write appends one entry. Errors are returned so callers can decide whether
// a failed audit write should fail the request.
func (w *AuditWriter) Write(ctx context.Context, entry AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource, detail, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.Action, entry.Resource, entry.Detail, entry.IPAddress, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// WriteAsync fires the write on a goroutine and logs failures. Used on hot
// request paths where audit persistence must not add latency.
func (w *AuditWriter) WriteAsync(entry AuditLog) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Write(ctx, entry); err != nil {
			log.Printf("[Audit] Failed to write entry for %s: %v", entry.Action, err)
		}
	}()
}

func (w *AuditWriter) Close() error {
	return w.db.Close()
}
