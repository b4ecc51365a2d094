package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
)

// newRedisStore starts an in-process RESP server and connects a Store to it.
func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(context.Background(), Options{Addr: mr.Addr(), Timeout: time.Second})
	if s.Degraded() {
		t.Fatalf("expected live store for %s, got degraded", mr.Addr())
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// newUnreachableStore points at a closed port so the construction probe fails.
func newUnreachableStore(t *testing.T) *Store {
	t.Helper()
	s := New(context.Background(), Options{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if !s.Degraded() {
		t.Fatal("expected degraded store for unreachable address")
	}
	return s
}

func TestNew_FallbackWhenUnreachable(t *testing.T) {
	s := newUnreachableStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected ErrDegraded, got: %v", err)
	}
	if !s.ListPush(ctx, "k", "a") || !s.ListPush(ctx, "k", "b") {
		t.Fatal("expected fallback push to succeed")
	}
	if n := s.ListLen(ctx, "k"); n != 2 {
		t.Fatalf("expected len 2, got: %d", n)
	}
	if diff := cmp.Diff([]string{"a", "b"}, s.ListDrain(ctx, "k")); diff != "" {
		t.Fatalf("drain mismatch (-want +got):\n%s", diff)
	}
	if got := s.ListDrain(ctx, "k"); len(got) != 0 {
		t.Fatalf("expected empty second drain, got: %v", got)
	}
}

func TestNew_Disabled(t *testing.T) {
	s := New(context.Background(), Options{Addr: "127.0.0.1:6379", Disabled: true})
	if !s.Degraded() {
		t.Fatal("expected disabled store to be degraded")
	}
}

func TestFallback_IgnoresExpiry(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if !s.SetWithExpiry(ctx, "flag", "1", time.Second) {
		t.Fatal("expected set to succeed")
	}
	if v, ok := s.Get(ctx, "flag"); !ok || v != "1" {
		t.Fatalf("expected flag=1, got: %q %v", v, ok)
	}
	if ttl := s.TTLRemaining(ctx, "flag"); ttl != -1 {
		t.Fatalf("expected -1 ttl in fallback, got: %d", ttl)
	}
	s.Delete(ctx, "flag")
	if _, ok := s.Get(ctx, "flag"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestFallback_ConcurrentPush(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ListPush(ctx, "k", "x")
		}()
	}
	wg.Wait()

	if n := s.ListLen(ctx, "k"); n != 50 {
		t.Fatalf("expected 50 entries, got: %d", n)
	}
}

func TestRedis_GetSetTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}
	if ttl := s.TTLRemaining(ctx, "missing"); ttl != -1 {
		t.Fatalf("expected -1 for missing key, got: %d", ttl)
	}

	s.SetWithExpiry(ctx, "cooldown:1", "1", 60*time.Second)
	if v, ok := s.Get(ctx, "cooldown:1"); !ok || v != "1" {
		t.Fatalf("expected value 1, got: %q %v", v, ok)
	}
	if ttl := s.TTLRemaining(ctx, "cooldown:1"); ttl <= 0 || ttl > 60 {
		t.Fatalf("expected 0 < ttl <= 60, got: %d", ttl)
	}

	mr.FastForward(61 * time.Second)
	if _, ok := s.Get(ctx, "cooldown:1"); ok {
		t.Fatal("expected key to expire")
	}
	if ttl := s.TTLRemaining(ctx, "cooldown:1"); ttl != -1 {
		t.Fatalf("expected -1 after expiry, got: %d", ttl)
	}
}

func TestRedis_ListDrainIsAtomicAndOrdered(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	for _, v := range []string{"one", "two", "three"} {
		if !s.ListPush(ctx, "msgbuf:1", v) {
			t.Fatalf("push %q failed", v)
		}
	}
	if n := s.ListLen(ctx, "msgbuf:1"); n != 3 {
		t.Fatalf("expected len 3, got: %d", n)
	}

	got := s.ListDrain(ctx, "msgbuf:1")
	if diff := cmp.Diff([]string{"one", "two", "three"}, got); diff != "" {
		t.Fatalf("drain mismatch (-want +got):\n%s", diff)
	}
	if mr.Exists("msgbuf:1") {
		t.Fatal("expected key deleted after drain")
	}
	if got := s.ListDrain(ctx, "msgbuf:1"); len(got) != 0 {
		t.Fatalf("expected empty drain, got: %v", got)
	}
}

func TestRedis_ExpireIfUnset(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	s.ListPush(ctx, "msgbuf:2", "hi")
	if ttl := s.TTLRemaining(ctx, "msgbuf:2"); ttl != -1 {
		t.Fatalf("expected no expiry yet, got: %d", ttl)
	}

	s.ExpireIfUnset(ctx, "msgbuf:2", 300*time.Second)
	if ttl := mr.TTL("msgbuf:2"); ttl != 300*time.Second {
		t.Fatalf("expected 300s ttl, got: %v", ttl)
	}

	// A second call must not shorten the existing window.
	s.ExpireIfUnset(ctx, "msgbuf:2", 10*time.Second)
	if ttl := mr.TTL("msgbuf:2"); ttl != 300*time.Second {
		t.Fatalf("expected ttl to stay 300s, got: %v", ttl)
	}
}

func TestRedis_ErrorsReturnSentinels(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	s := New(context.Background(), Options{Addr: mr.Addr(), Timeout: 200 * time.Millisecond})
	defer s.Close()
	ctx := context.Background()
	mr.Close()

	if s.ListPush(ctx, "k", "v") {
		t.Fatal("expected push to fail once the server is gone")
	}
	if n := s.ListLen(ctx, "k"); n != 0 {
		t.Fatalf("expected 0, got: %d", n)
	}
	if got := s.ListDrain(ctx, "k"); got != nil {
		t.Fatalf("expected nil drain, got: %v", got)
	}
	if ttl := s.TTLRemaining(ctx, "k"); ttl != -1 {
		t.Fatalf("expected -1, got: %d", ttl)
	}
	if s.Degraded() {
		t.Fatal("a live store must not switch to fallback after construction")
	}
}
