package api

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ojachat/ojachat/internal/cart"
	"github.com/ojachat/ojachat/internal/chat"
	"github.com/ojachat/ojachat/internal/localstore"
)

// UserState bundles the per-user stores. Each user gets an independent cart
// and chat log backed by their own snapshot directory, so one user's state
// never leaks into another's.
type UserState struct {
	Cart *cart.Store
	Chat *chat.Log
}

// StateRegistry lazily constructs and caches UserState per user id.
type StateRegistry struct {
	mu      sync.Mutex
	baseDir string
	sender  chat.Sender
	states  map[string]*UserState
}

func NewStateRegistry(baseDir string, sender chat.Sender) *StateRegistry {
	return &StateRegistry{
		baseDir: baseDir,
		sender:  sender,
		states:  make(map[string]*UserState),
	}
}

// For returns the user's state, creating and restoring it from snapshots on
// first access.
func (r *StateRegistry) For(userID string) (*UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[userID]; ok {
		return state, nil
	}

	store, err := localstore.New(filepath.Join(r.baseDir, userID))
	if err != nil {
		return nil, fmt.Errorf("open snapshot store for %s: %w", userID, err)
	}

	state := &UserState{
		Cart: cart.NewStore(store),
		Chat: chat.NewLog(r.sender, store),
	}
	r.states[userID] = state
	return state, nil
}
