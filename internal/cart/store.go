package cart

import (
	"errors"
	"log"
	"sync"
)

const snapshotKey = "cart"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("item id is required")
)

// Item is one cart line. Lines are unique by (ID, Color): the same product
// in two colors occupies two lines.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Image    string `json:"image,omitempty"`
	Quantity int    `json:"quantity"`
	Color    string `json:"color,omitempty"`
}

// Persister is the slice of the local snapshot store the cart needs.
type Persister interface {
	Save(key string, v any) error
	Load(key string, v any) (bool, error)
}

// Store holds a user's cart. It is purely local state: no mutation touches
// the remote store until checkout snapshots the items into an order.
// Totals are recomputed synchronously on every mutation and the full item
// list is persisted after each one.
type Store struct {
	mu      sync.Mutex
	items   []Item
	persist Persister

	totalItems  int
	totalAmount int
}

// NewStore builds a cart store, restoring any persisted snapshot. A missing
// or discarded snapshot starts the cart empty.
func NewStore(persist Persister) *Store {
	s := &Store{persist: persist}
	if persist != nil {
		var items []Item
		if ok, err := persist.Load(snapshotKey, &items); err != nil {
			log.Printf("[Cart] Failed to load snapshot: %v", err)
		} else if ok {
			s.items = items
		}
	}
	s.recompute()
	return s
}

// AddItem merges into an existing (id, color) line by summing quantities,
// or appends a new line.
func (s *Store) AddItem(item Item) error {
	if item.ID == "" {
		return ErrInvalidProduct
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := false
	for i := range s.items {
		if s.items[i].ID == item.ID && s.items[i].Color == item.Color {
			s.items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, item)
	}

	s.afterMutation()
	return nil
}

// UpdateQuantity sets the quantity of the (id, color) line. A quantity of
// zero or less removes the line entirely.
func (s *Store) UpdateQuantity(id string, quantity int, color string) error {
	if id == "" {
		return ErrInvalidProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.removeLocked(id, color)
	} else {
		for i := range s.items {
			if s.items[i].ID == id && s.items[i].Color == color {
				s.items[i].Quantity = quantity
				break
			}
		}
	}

	s.afterMutation()
	return nil
}

// RemoveItem removes the single line matching (id, color).
func (s *Store) RemoveItem(id, color string) error {
	if id == "" {
		return ErrInvalidProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id, color)
	s.afterMutation()
	return nil
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.afterMutation()
}

// Items returns a copy of the current lines.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// TotalItems is the sum of quantities over all lines.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalItems
}

// TotalAmount is the sum of price*quantity over all lines.
func (s *Store) TotalAmount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalAmount
}

func (s *Store) removeLocked(id, color string) {
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].Color == color {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// afterMutation recomputes totals and persists. Callers hold the lock.
func (s *Store) afterMutation() {
	s.recompute()
	if s.persist == nil {
		return
	}
	items := s.items
	if items == nil {
		items = []Item{}
	}
	if err := s.persist.Save(snapshotKey, items); err != nil {
		log.Printf("[Cart] Failed to persist snapshot: %v", err)
	}
}

func (s *Store) recompute() {
	totalItems, totalAmount := 0, 0
	for _, it := range s.items {
		totalItems += it.Quantity
		totalAmount += it.Price * it.Quantity
	}
	s.totalItems = totalItems
	s.totalAmount = totalAmount
}
