// Package kvstore wraps the external key-value store (Redis) used by the
// inbound message buffer and the cooldown gate.
//
// A Store probes the server once when it is constructed. If the probe fails,
// the Store runs for the rest of its life on an in-process map with the same
// key layout. Fallback mode keeps every call signature working but gives up
// durability and expiry. No operation returns an error: failures are logged
// and reported through the documented sentinel (false, empty, -1).
package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

// ErrDegraded is returned by Ping when the store runs on the in-process fallback.
var ErrDegraded = errors.New("kvstore: running on in-process fallback")

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration // dial/read/write timeout (default 5s)
	Disabled bool          // skip the probe and start on the fallback
}

// Store is a Redis-backed key-value store with an in-process fallback.
// Safe for concurrent use.
type Store struct {
	client   *redis.Client // nil in fallback mode
	fallback *memoryStore
	addr     string
}

// New connects to Redis and probes it with PING. On failure the returned
// Store is degraded and serves every operation from process memory.
func New(ctx context.Context, opts Options) *Store {
	if opts.Disabled {
		slog.Info("kvstore.disabled", "mode", "memory")
		return NewMemory()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		slog.Warn("kvstore.fallback", "addr", opts.Addr, "error", err)
		_ = client.Close()
		s := NewMemory()
		s.addr = opts.Addr
		return s
	}

	slog.Info("kvstore.connected", "addr", opts.Addr, "db", opts.DB)
	return &Store{client: client, addr: opts.Addr}
}

// NewMemory returns a Store that never talks to Redis.
func NewMemory() *Store {
	return &Store{fallback: newMemoryStore()}
}

// Degraded reports whether the store is running on the in-process fallback.
func (s *Store) Degraded() bool {
	return s.client == nil
}

// Addr returns the configured Redis address (empty for a pure memory store).
func (s *Store) Addr() string {
	return s.addr
}

// Get returns the string value at key.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	if s.Degraded() {
		return s.fallback.get(key)
	}
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("kvstore.get", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

// SetWithExpiry stores value at key with a TTL. The TTL is ignored in fallback mode.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) bool {
	if s.Degraded() {
		s.fallback.set(key, value)
		return true
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Error("kvstore.set", "key", key, "error", err)
		return false
	}
	return true
}

// ListPush appends value to the list at key.
func (s *Store) ListPush(ctx context.Context, key, value string) bool {
	if s.Degraded() {
		s.fallback.push(key, value)
		return true
	}
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		slog.Error("kvstore.list_push", "key", key, "error", err)
		return false
	}
	return true
}

// ListLen returns the length of the list at key (0 when absent or on error).
func (s *Store) ListLen(ctx context.Context, key string) int {
	if s.Degraded() {
		return s.fallback.length(key)
	}
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		slog.Error("kvstore.list_len", "key", key, "error", err)
		return 0
	}
	return int(n)
}

// ListDrain reads the whole list at key and deletes it in one transaction.
// Values come back in insertion order.
func (s *Store) ListDrain(ctx context.Context, key string) []string {
	if s.Degraded() {
		return s.fallback.drain(key)
	}
	var values *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		values = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		slog.Error("kvstore.list_drain", "key", key, "error", err)
		return nil
	}
	return values.Val()
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) bool {
	if s.Degraded() {
		s.fallback.del(key)
		return true
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		slog.Error("kvstore.delete", "key", key, "error", err)
		return false
	}
	return true
}

// TTLRemaining returns the remaining TTL in seconds, or -1 when the key is
// absent, has no expiry, or the store is degraded.
func (s *Store) TTLRemaining(ctx context.Context, key string) int {
	if s.Degraded() {
		return -1
	}
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		slog.Error("kvstore.ttl", "key", key, "error", err)
		return -1
	}
	// go-redis reports "no key" (-2) and "no expiry" (-1) as raw negative durations.
	if d < 0 {
		return -1
	}
	return int(d / time.Second)
}

// ExpireIfUnset sets ttl on key only if the key currently has no expiry.
func (s *Store) ExpireIfUnset(ctx context.Context, key string, ttl time.Duration) bool {
	if s.Degraded() {
		return true
	}
	if s.TTLRemaining(ctx, key) >= 0 {
		return true
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		slog.Error("kvstore.expire", "key", key, "error", err)
		return false
	}
	return true
}

// Ping checks the live connection. Degraded stores return ErrDegraded.
func (s *Store) Ping(ctx context.Context) error {
	if s.Degraded() {
		return ErrDegraded
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
