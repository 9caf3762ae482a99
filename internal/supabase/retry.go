package supabase

import (
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig bounds the retry behavior of the client. Only transport
// failures and retryable status codes are retried; everything else surfaces
// immediately.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64 // 0.0 to 1.0
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

func (r RetryConfig) retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff returns the delay before the given attempt (1-based).
func (r RetryConfig) backoff(attempt int) time.Duration {
	d := float64(r.InitialBackoff) * math.Pow(r.BackoffMultiplier, float64(attempt-1))
	if max := float64(r.MaxBackoff); r.MaxBackoff > 0 && d > max {
		d = max
	}
	if r.Jitter > 0 {
		d += d * r.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
