// Package ratelimit provides per-key limiters over golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter. A nil *Limiter never limits.
type Limiter struct {
	limiter *rate.Limiter
}

// NewPerSecond creates a limiter allowing perSecond events with the given burst.
// perSecond <= 0 returns nil (unlimited).
func NewPerSecond(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// Keyed hands out one limiter per key, e.g. per connection.
type Keyed struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewKeyed creates a Keyed limiter set. perSecond <= 0 disables limiting.
func NewKeyed(perSecond float64, burst int) *Keyed {
	return &Keyed{
		perSecond: perSecond,
		burst:     burst,
		limiters:  make(map[string]*Limiter),
	}
}

// Enabled reports whether limiting is configured.
func (k *Keyed) Enabled() bool {
	return k != nil && k.perSecond > 0
}

// Get returns the limiter for key, creating it on first use.
func (k *Keyed) Get(key string) *Limiter {
	if !k.Enabled() {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = NewPerSecond(k.perSecond, k.burst)
		k.limiters[key] = l
	}
	return l
}

// Wait waits on the limiter for key.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	return k.Get(key).Wait(ctx)
}

// Forget drops the limiter for key.
func (k *Keyed) Forget(key string) {
	if k == nil {
		return
	}
	k.mu.Lock()
	delete(k.limiters, key)
	k.mu.Unlock()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
