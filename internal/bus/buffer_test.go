package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/nextlevelbuilder/mercadoclaw/internal/kvstore"
)

func newRedisBackedStore(t *testing.T) (*kvstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := kvstore.New(context.Background(), kvstore.Options{Addr: mr.Addr(), Timeout: time.Second})
	if s.Degraded() {
		t.Fatal("expected live store")
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// TestBuffer_DrainPreservesOrder verifies FIFO order and that a second drain is empty.
func TestBuffer_DrainPreservesOrder(t *testing.T) {
	store, _ := newRedisBackedStore(t)
	buf := NewBuffer(store, 0)
	ctx := context.Background()

	buf.Push(ctx, "5585999990000", "oi", "m1")
	buf.Push(ctx, "5585999990000", "tem arroz?", "m2")
	buf.Push(ctx, "5585999990000", "e feijao", "m3")

	if n := buf.Len(ctx, "5585999990000"); n != 3 {
		t.Fatalf("expected len 3, got: %d", n)
	}

	texts, lastID := buf.Drain(ctx, "5585999990000")
	if diff := cmp.Diff([]string{"oi", "tem arroz?", "e feijao"}, texts); diff != "" {
		t.Fatalf("texts mismatch (-want +got):\n%s", diff)
	}
	if lastID != "m3" {
		t.Fatalf("expected last id m3, got: %q", lastID)
	}

	texts, lastID = buf.Drain(ctx, "5585999990000")
	if len(texts) != 0 || lastID != "" {
		t.Fatalf("expected empty second drain, got: %v %q", texts, lastID)
	}
}

// TestBuffer_SetsWindowOnce verifies the expiry is applied only when the key has none.
func TestBuffer_SetsWindowOnce(t *testing.T) {
	store, mr := newRedisBackedStore(t)
	buf := NewBuffer(store, 120*time.Second)
	ctx := context.Background()

	buf.Push(ctx, "c1", "a", "")
	if ttl := mr.TTL(BufferKey("c1")); ttl != 120*time.Second {
		t.Fatalf("expected 120s window, got: %v", ttl)
	}

	mr.FastForward(100 * time.Second)
	buf.Push(ctx, "c1", "b", "")
	if ttl := mr.TTL(BufferKey("c1")); ttl != 20*time.Second {
		t.Fatalf("expected window not to be extended, got: %v", ttl)
	}

	mr.FastForward(21 * time.Second)
	if n := buf.Len(ctx, "c1"); n != 0 {
		t.Fatalf("expected abandoned buffer to expire, got len %d", n)
	}
}

// TestBuffer_LegacyEntries verifies plain-text entries written by older
// writers are drained verbatim alongside structured ones.
func TestBuffer_LegacyEntries(t *testing.T) {
	store, mr := newRedisBackedStore(t)
	buf := NewBuffer(store, 0)
	ctx := context.Background()

	mr.RPush(BufferKey("c2"), "mensagem antiga")
	buf.Push(ctx, "c2", "nova", "m9")
	mr.RPush(BufferKey("c2"), `"json string"`)
	buf.Push(ctx, "c2", "", "m10")

	texts, lastID := buf.Drain(ctx, "c2")
	if diff := cmp.Diff([]string{"mensagem antiga", "nova", `"json string"`}, texts); diff != "" {
		t.Fatalf("texts mismatch (-want +got):\n%s", diff)
	}
	if lastID != "m10" {
		t.Fatalf("expected last id from the empty-text entry, got: %q", lastID)
	}
}

// TestBuffer_LastIDIgnoresEmpty verifies a fragment without id does not reset the last id.
func TestBuffer_LastIDIgnoresEmpty(t *testing.T) {
	buf := NewBuffer(kvstore.NewMemory(), 0)
	ctx := context.Background()

	buf.Push(ctx, "c3", "a", "m1")
	buf.Push(ctx, "c3", "b", "")

	_, lastID := buf.Drain(ctx, "c3")
	if lastID != "m1" {
		t.Fatalf("expected m1, got: %q", lastID)
	}
}

// TestBuffer_FallbackRoundTrip verifies push/drain on a store whose probe failed.
func TestBuffer_FallbackRoundTrip(t *testing.T) {
	store := kvstore.New(context.Background(), kvstore.Options{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if !store.Degraded() {
		t.Fatal("expected degraded store")
	}
	buf := NewBuffer(store, 0)
	ctx := context.Background()

	for _, msg := range []InboundMessage{
		{ConversationID: "c4", Content: "quero", MessageID: "a"},
		{ConversationID: "c4", Content: "leite", MessageID: "b"},
	} {
		if !buf.PushMessage(ctx, msg) {
			t.Fatalf("push %q failed", msg.Content)
		}
	}
	if n := buf.Len(ctx, "c4"); n != 2 {
		t.Fatalf("expected len 2, got: %d", n)
	}

	texts, lastID := buf.Drain(ctx, "c4")
	if diff := cmp.Diff([]string{"quero", "leite"}, texts); diff != "" {
		t.Fatalf("texts mismatch (-want +got):\n%s", diff)
	}
	if lastID != "b" {
		t.Fatalf("expected b, got: %q", lastID)
	}
}

func TestBuffer_DrainAbsent(t *testing.T) {
	buf := NewBuffer(kvstore.NewMemory(), 0)
	texts, lastID := buf.Drain(context.Background(), "nobody")
	if texts != nil || lastID != "" {
		t.Fatalf("expected nil and empty id, got: %v %q", texts, lastID)
	}
}
