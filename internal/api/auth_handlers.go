package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/ojachat/ojachat/internal/api/middleware"
	"github.com/ojachat/ojachat/internal/auth"
	"github.com/ojachat/ojachat/internal/supabase"
)

// AuthHandlers fronts the Supabase auth lifecycle. Each signed-in user gets
// an auth.Holder that owns their session and proactive refresh loop.
type AuthHandlers struct {
	client *supabase.Client

	mu      sync.Mutex
	holders map[string]*auth.Holder
}

func NewAuthHandlers(client *supabase.Client) *AuthHandlers {
	return &AuthHandlers{
		client:  client,
		holders: make(map[string]*auth.Holder),
	}
}

func (a *AuthHandlers) holderFor(userID string) (*auth.Holder, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.holders[userID]
	return h, ok
}

// Close stops every holder's refresh loop. Called on shutdown.
func (a *AuthHandlers) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, h := range a.holders {
		h.Close()
		delete(a.holders, id)
	}
}

// SignIn exchanges credentials for a session and starts a refresh loop.
func (a *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	holder := auth.NewHolder(a.client)
	if err := holder.SignIn(r.Context(), req.Email, req.Password); err != nil {
		respondError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	session, ok := holder.Session()
	if !ok {
		respondError(w, "sign in failed", http.StatusUnauthorized)
		return
	}
	userID := holder.UserID()

	a.mu.Lock()
	if old, exists := a.holders[userID]; exists {
		old.Close()
	}
	a.holders[userID] = holder
	a.mu.Unlock()

	holder.Start(context.Background())

	respondJSON(w, http.StatusOK, map[string]any{
		"session":             session,
		"needs_profile_setup": holder.NeedsProfileSetup(),
	})
}

// SignOut revokes the session and forgets the holder.
func (a *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	a.mu.Lock()
	holder, ok := a.holders[userID]
	delete(a.holders, userID)
	a.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	holder.Close()
	if err := holder.SignOut(r.Context()); err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh forces a token refresh outside the proactive timer.
func (a *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	holder, ok := a.holderFor(userID)
	if !ok {
		respondError(w, "no active session", http.StatusUnauthorized)
		return
	}

	if err := holder.Refresh(r.Context()); err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			respondError(w, "no active session", http.StatusUnauthorized)
			return
		}
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	session, _ := holder.Session()
	respondJSON(w, http.StatusOK, map[string]any{"session": session})
}

// Me returns the held profile and setup state.
func (a *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	holder, ok := a.holderFor(userID)
	if !ok {
		respondError(w, "no active session", http.StatusUnauthorized)
		return
	}

	profile, _ := holder.Profile()
	respondJSON(w, http.StatusOK, map[string]any{
		"profile":             profile,
		"needs_profile_setup": holder.NeedsProfileSetup(),
	})
}

// SaveProfile upserts the profile row, optionally with a new avatar.
func (a *AuthHandlers) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	holder, ok := a.holderFor(userID)
	if !ok {
		respondError(w, "no active session", http.StatusUnauthorized)
		return
	}

	var req struct {
		FullName     string `json:"full_name"`
		Phone        string `json:"phone"`
		AvatarBase64 string `json:"avatar_base64,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var avatar []byte
	if req.AvatarBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.AvatarBase64)
		if err != nil {
			respondError(w, "invalid avatar encoding", http.StatusBadRequest)
			return
		}
		avatar = decoded
	}

	profile := auth.Profile{ID: userID, FullName: req.FullName, Phone: req.Phone}
	if err := holder.SaveProfile(r.Context(), profile, avatar); err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	saved, _ := holder.Profile()
	respondJSON(w, http.StatusOK, map[string]any{
		"profile":             saved,
		"needs_profile_setup": holder.NeedsProfileSetup(),
	})
}
