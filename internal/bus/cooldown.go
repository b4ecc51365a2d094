package bus

import (
	"context"
	"log/slog"
	"time"
)

// FlagStore is the subset of the key-value store the cooldown gate needs.
type FlagStore interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) bool
	TTLRemaining(ctx context.Context, key string) int
	Degraded() bool
}

// CooldownGate pauses automated replies for a conversation, typically after a
// human agent takes over. Expiry is the only way a cooldown ends.
type CooldownGate struct {
	store FlagStore
}

// NewCooldownGate creates a gate on store.
func NewCooldownGate(store FlagStore) *CooldownGate {
	return &CooldownGate{store: store}
}

// Activate starts (or restarts) the cooldown for ttl. A non-positive ttl is
// rejected: the silence window is always bounded. On a degraded store nothing
// is persisted and false is returned.
func (g *CooldownGate) Activate(ctx context.Context, conversationID string, ttl time.Duration) bool {
	if ttl < time.Second {
		slog.Warn("bus.cooldown.invalid_ttl", "conversation", conversationID, "ttl", ttl)
		return false
	}
	if g.store.Degraded() {
		slog.Warn("bus.cooldown.not_persisted", "conversation", conversationID, "reason", "store degraded")
		return false
	}
	if !g.store.SetWithExpiry(ctx, CooldownKey(conversationID), "1", ttl) {
		return false
	}
	slog.Info("bus.cooldown.activated", "conversation", conversationID, "ttl", ttl)
	return true
}

// IsActive reports whether automation is paused and the seconds left.
// Every flag is written with an expiry, so one TTL read answers both: a
// non-negative TTL means active. Absent flags, store errors and a degraded
// store all read as (false, -1).
func (g *CooldownGate) IsActive(ctx context.Context, conversationID string) (bool, int) {
	if g.store.Degraded() {
		return false, -1
	}
	ttl := g.store.TTLRemaining(ctx, CooldownKey(conversationID))
	if ttl < 0 {
		return false, -1
	}
	return true, ttl
}
