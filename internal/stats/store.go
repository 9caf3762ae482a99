package stats

import "time"

// Store is the write/read surface for projected statistics. Record methods
// must be idempotent on eventID so a redelivered Kafka message never double
// counts.
type Store interface {
	RecordOrder(eventID string, rec OrderRecord) error
	RecordUsage(eventID, feature string, amount int, at time.Time) error
	RecordSession(eventID, userID string, at time.Time) error

	Daily(from, to time.Time) ([]DailyStat, error)
	TopFeatures(limit int) ([]FeatureUsage, error)
	Totals() (Overview, error)
}
