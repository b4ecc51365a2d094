package http

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked conversations so a sender
	// rotating ids cannot grow the table without bound.
	maxTrackedKeys = 4096

	// rateLimitWindow is the fixed window for counting pushes.
	rateLimitWindow = 60 * time.Second

	// rateLimitMaxHits is the max pushes per conversation within a window.
	rateLimitMaxHits = 30
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// InboundRateLimiter bounds buffered pushes per conversation.
// Safe for concurrent use.
type InboundRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	maxHits int
	window  time.Duration
	now     func() time.Time
}

// NewInboundRateLimiter creates a limiter with the default window and cap.
func NewInboundRateLimiter() *InboundRateLimiter {
	return &InboundRateLimiter{
		entries: make(map[string]*rateLimitEntry),
		maxHits: rateLimitMaxHits,
		window:  rateLimitWindow,
		now:     time.Now,
	}
}

// Allow returns true if the conversation is within its push budget.
// Stale entries are pruned once the table reaches maxTrackedKeys.
func (r *InboundRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.maxHits
}

// Tracked returns the number of conversations currently tracked.
func (r *InboundRateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
