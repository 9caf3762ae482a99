package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ojachat/ojachat/internal/supabase"
)

// DefaultRefreshInterval keeps sessions fresh well inside the one-hour
// access-token lifetime.
const DefaultRefreshInterval = 50 * time.Minute

var ErrNotSignedIn = errors.New("not signed in")

// Profile is the profiles row kept alongside the auth account.
type Profile struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Holder owns one user's auth session: credentials exchange, profile state,
// and a proactive refresh loop. It is constructed explicitly and injected
// where a session is needed.
//
// Every async completion (refresh, profile fetch) carries the generation it
// started under; a completion whose generation is stale — a sign-out or new
// sign-in happened meanwhile — is discarded.
type Holder struct {
	client       *supabase.Client
	refreshEvery time.Duration

	gen        atomic.Uint64
	refreshing atomic.Bool

	mu      sync.Mutex
	session *supabase.Session
	profile *Profile

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHolder(client *supabase.Client) *Holder {
	return &Holder{
		client:       client,
		refreshEvery: DefaultRefreshInterval,
		stop:         make(chan struct{}),
	}
}

// SignIn establishes a session and loads the profile row.
func (h *Holder) SignIn(ctx context.Context, email, password string) error {
	gen := h.gen.Add(1)

	session, err := h.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if !h.install(gen, session) {
		return nil
	}

	if err := h.loadProfile(ctx, gen); err != nil {
		log.Printf("[Auth] Profile fetch after sign-in failed: %v", err)
	}
	return nil
}

// SignOut revokes the session and clears all held state.
func (h *Holder) SignOut(ctx context.Context) error {
	h.gen.Add(1)

	h.mu.Lock()
	session := h.session
	h.session = nil
	h.profile = nil
	h.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := h.client.SignOut(ctx, session.AccessToken); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh token for a new session. A call arriving
// while another refresh is in flight is dropped, not queued.
func (h *Holder) Refresh(ctx context.Context) error {
	if !h.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer h.refreshing.Store(false)

	gen := h.gen.Load()

	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session == nil {
		return ErrNotSignedIn
	}

	next, err := h.client.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	h.install(gen, next)
	return nil
}

// Start runs the proactive refresh loop until Close or ctx cancellation.
func (h *Holder) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.refreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
				if err := h.Refresh(ctx); err != nil && !errors.Is(err, ErrNotSignedIn) {
					log.Printf("[Auth] Proactive refresh failed: %v", err)
				}
			}
		}
	}()
}

// Close stops the refresh loop.
func (h *Holder) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Session returns the current session, if any.
func (h *Holder) Session() (*supabase.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session, h.session != nil
}

// UserID returns the signed-in user's id, or "".
func (h *Holder) UserID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil || h.session.User == nil {
		return ""
	}
	return h.session.User.ID
}

// Profile returns the loaded profile row, if any.
func (h *Holder) Profile() (*Profile, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.profile, h.profile != nil
}

// NeedsProfileSetup reports whether the signed-in user still has to complete
// their profile. The sole criterion is an absent phone number.
func (h *Holder) NeedsProfileSetup() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return false
	}
	return h.profile == nil || h.profile.Phone == ""
}

// SaveProfile upserts the profile row. When avatar data is given it is
// uploaded first; an upload failure is logged and the rest of the save
// continues without the new avatar.
func (h *Holder) SaveProfile(ctx context.Context, profile Profile, avatar []byte) error {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session == nil {
		return ErrNotSignedIn
	}

	client := h.client.WithToken(session.AccessToken)
	if len(avatar) > 0 {
		bucket := client.Storage("avatars")
		path := profile.ID + "/avatar.png"
		if err := bucket.Upload(ctx, path, avatar, "image/png"); err != nil {
			log.Printf("[Auth] Avatar upload failed, saving profile without it: %v", err)
		} else {
			profile.AvatarURL = bucket.PublicURL(path)
		}
	}

	var saved []Profile
	err := client.From("profiles").Upsert(ctx, []Profile{profile}, &saved, "id")
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	gen := h.gen.Load()
	h.mu.Lock()
	if gen == h.gen.Load() {
		h.profile = &profile
		if len(saved) > 0 {
			h.profile = &saved[0]
		}
	}
	h.mu.Unlock()
	return nil
}

// install stores a session unless gen went stale while the exchange ran.
func (h *Holder) install(gen uint64, session *supabase.Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen.Load() {
		log.Printf("[Auth] Discarding stale session (generation %d)", gen)
		return false
	}
	h.session = session
	return true
}

func (h *Holder) loadProfile(ctx context.Context, gen uint64) error {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session == nil || session.User == nil {
		return ErrNotSignedIn
	}

	var profile Profile
	err := h.client.WithToken(session.AccessToken).
		From("profiles").
		Eq("id", session.User.ID).
		Single().
		Get(ctx, &profile)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if gen == h.gen.Load() {
		h.profile = &profile
	}
	h.mu.Unlock()
	return nil
}
