// Package gate answers feature-access and usage-limit questions from remote
// subscription state. Every check yields a tagged Result so call sites pick
// their own policy when the remote store cannot be reached, instead of the
// check hardcoding fail-open or fail-closed.
package gate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Unlimited is the plan limit value meaning no cap on a feature.
const Unlimited = -1

var ErrNoActiveSubscription = errors.New("no active subscription")

// Decision is the outcome of a gate check.
type Decision int

const (
	// Allowed means the check passed.
	Allowed Decision = iota
	// Denied means the check failed on real subscription state.
	Denied
	// Unknown means the state could not be fetched; Result.Err says why.
	Unknown
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Result carries the decision and, for Unknown, the underlying error.
type Result struct {
	Decision Decision
	Err      error
}

func allow() Result            { return Result{Decision: Allowed} }
func deny() Result             { return Result{Decision: Denied} }
func unknown(err error) Result { return Result{Decision: Unknown, Err: err} }

// Plan is the subscription plan a user is on. Limits map feature names to
// caps; Unlimited (-1) lifts the cap entirely. Features map names to flags.
type Plan struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Limits   map[string]int  `json:"limits"`
	Features map[string]bool `json:"features"`
}

// Subscription is one user_subscriptions row with its plan embedded.
type Subscription struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
	Plan   *Plan  `json:"subscription_plans"`
}

// UsageCounter is one subscription_usage row.
type UsageCounter struct {
	UserID      string    `json:"user_id"`
	FeatureName string    `json:"feature_name"`
	UsedAmount  int       `json:"used_amount"`
	ResetDate   time.Time `json:"reset_date"`
}

// Source reads and updates subscription state in the remote store.
type Source interface {
	// ActiveSubscription returns the user's active subscription, or
	// ErrNoActiveSubscription when none exists.
	ActiveSubscription(ctx context.Context, userID string) (*Subscription, error)

	// Usage returns the usage counter for a feature. A missing row is a
	// zero counter, not an error.
	Usage(ctx context.Context, userID, feature string) (*UsageCounter, error)

	// IncrementUsage adds amount to the counter, creating the row if
	// absent. The idempotency key dedupes retried deliveries.
	IncrementUsage(ctx context.Context, userID, feature string, amount int, idempotencyKey string) error
}

type cachedSubscription struct {
	sub       *Subscription
	fetchedAt time.Time
}

// Gate is an explicitly-constructed state container: it owns a per-user
// subscription cache and nothing else. Usage counters are never cached.
type Gate struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSubscription
}

func New(source Source, cacheTTL time.Duration) *Gate {
	return &Gate{
		source: source,
		ttl:    cacheTTL,
		now:    time.Now,
		cache:  make(map[string]cachedSubscription),
	}
}

// CheckFeature reports whether the user's plan enables the named feature.
func (g *Gate) CheckFeature(ctx context.Context, userID, feature string) Result {
	sub, err := g.subscription(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			return deny()
		}
		return unknown(err)
	}
	if sub.Plan == nil || !sub.Plan.Features[feature] {
		return deny()
	}
	return allow()
}

// CheckLimit reports whether the user is still under the plan's cap for the
// feature. Allowed means under the cap, Denied means the cap is reached.
func (g *Gate) CheckLimit(ctx context.Context, userID, feature string) Result {
	sub, err := g.subscription(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			return deny()
		}
		return unknown(err)
	}

	limit := 0
	if sub.Plan != nil {
		limit = sub.Plan.Limits[feature]
	}
	if limit == Unlimited {
		return allow()
	}

	usage, err := g.source.Usage(ctx, userID, feature)
	if err != nil {
		return unknown(err)
	}
	used := 0
	if usage != nil {
		used = usage.UsedAmount
	}
	if used >= limit {
		return deny()
	}
	return allow()
}

// HasFeatureAccess is the fail-closed convenience wrapper: an Unknown
// decision reads as no access.
func (g *Gate) HasFeatureAccess(ctx context.Context, userID, feature string) bool {
	res := g.CheckFeature(ctx, userID, feature)
	if res.Decision == Unknown {
		log.Printf("[Gate] Feature check %q for %s failed, denying: %v", feature, userID, res.Err)
	}
	return res.Decision == Allowed
}

// HasReachedLimit is the fail-safe convenience wrapper: an Unknown decision
// reads as limit reached.
func (g *Gate) HasReachedLimit(ctx context.Context, userID, feature string) bool {
	res := g.CheckLimit(ctx, userID, feature)
	if res.Decision == Unknown {
		log.Printf("[Gate] Limit check %q for %s failed, blocking: %v", feature, userID, res.Err)
	}
	return res.Decision != Allowed
}

// TrackUsage increments the remote counter for the feature. Each call mints
// an idempotency key so a transport-level retry cannot double-count.
func (g *Gate) TrackUsage(ctx context.Context, userID, feature string, amount int) error {
	if amount <= 0 {
		amount = 1
	}
	return g.source.IncrementUsage(ctx, userID, feature, amount, uuid.New().String())
}

// Refresh drops the cached subscription and refetches it.
func (g *Gate) Refresh(ctx context.Context, userID string) error {
	g.mu.Lock()
	delete(g.cache, userID)
	g.mu.Unlock()

	_, err := g.subscription(ctx, userID)
	return err
}

func (g *Gate) subscription(ctx context.Context, userID string) (*Subscription, error) {
	g.mu.Lock()
	if cached, ok := g.cache[userID]; ok && g.now().Sub(cached.fetchedAt) < g.ttl {
		g.mu.Unlock()
		return cached.sub, nil
	}
	g.mu.Unlock()

	sub, err := g.source.ActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[userID] = cachedSubscription{sub: sub, fetchedAt: g.now()}
	g.mu.Unlock()
	return sub, nil
}
