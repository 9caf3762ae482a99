package stats

import "time"

// OrderRecord is one row in the admin order overview, projected from
// OrderPlaced events.
type OrderRecord struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ItemCount int       `json:"item_count"`
	Total     int       `json:"total"`
	PlacedAt  time.Time `json:"placed_at"`
}

// DailyStat aggregates one calendar day of activity.
type DailyStat struct {
	Day      time.Time `json:"day"`
	Orders   int       `json:"orders"`
	Revenue  int       `json:"revenue"`
	Sessions int       `json:"sessions"`
}

// FeatureUsage counts how often a gated feature was exercised.
type FeatureUsage struct {
	Feature string `json:"feature"`
	Count   int    `json:"count"`
}

// Overview is the headline admin dashboard card.
type Overview struct {
	TotalOrders   int `json:"total_orders"`
	TotalRevenue  int `json:"total_revenue"`
	TotalSessions int `json:"total_sessions"`
}
