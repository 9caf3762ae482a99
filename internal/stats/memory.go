package stats

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests and local development runs
// where no PostgreSQL is available.
type MemoryStore struct {
	mu       sync.RWMutex
	seen     map[string]bool
	orders   []OrderRecord
	usage    map[string]int
	sessions []time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:  make(map[string]bool),
		usage: make(map[string]int),
	}
}

func (m *MemoryStore) RecordOrder(eventID string, rec OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return nil
	}
	m.seen[eventID] = true
	m.orders = append(m.orders, rec)
	return nil
}

func (m *MemoryStore) RecordUsage(eventID, feature string, amount int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return nil
	}
	m.seen[eventID] = true
	m.usage[feature] += amount
	return nil
}

func (m *MemoryStore) RecordSession(eventID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return nil
	}
	m.seen[eventID] = true
	m.sessions = append(m.sessions, at)
	return nil
}

func (m *MemoryStore) Daily(from, to time.Time) ([]DailyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[time.Time]*DailyStat)
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	bucket := func(t time.Time) *DailyStat {
		d := day(t)
		if s, ok := byDay[d]; ok {
			return s
		}
		s := &DailyStat{Day: d}
		byDay[d] = s
		return s
	}

	for _, o := range m.orders {
		if o.PlacedAt.Before(from) || !o.PlacedAt.Before(to) {
			continue
		}
		s := bucket(o.PlacedAt)
		s.Orders++
		s.Revenue += o.Total
	}
	for _, at := range m.sessions {
		if at.Before(from) || !at.Before(to) {
			continue
		}
		bucket(at).Sessions++
	}

	out := make([]DailyStat, 0, len(byDay))
	for _, s := range byDay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (m *MemoryStore) TopFeatures(limit int) ([]FeatureUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]FeatureUsage, 0, len(m.usage))
	for feature, count := range m.usage {
		out = append(out, FeatureUsage{Feature: feature, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Feature < out[j].Feature
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Totals() (Overview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o := Overview{
		TotalOrders:   len(m.orders),
		TotalSessions: len(m.sessions),
	}
	for _, rec := range m.orders {
		o.TotalRevenue += rec.Total
	}
	return o, nil
}

// Orders returns projected orders newest first.
func (m *MemoryStore) Orders() []OrderRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]OrderRecord, len(m.orders))
	copy(out, m.orders)
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out
}
