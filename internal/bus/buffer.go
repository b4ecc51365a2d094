package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultBufferTTL is the expiry set on a buffer that has none, so an
// abandoned conversation cleans itself up.
const DefaultBufferTTL = 300 * time.Second

// ListStore is the subset of the key-value store the buffer needs.
type ListStore interface {
	ListPush(ctx context.Context, key, value string) bool
	ListLen(ctx context.Context, key string) int
	ListDrain(ctx context.Context, key string) []string
	ExpireIfUnset(ctx context.Context, key string, ttl time.Duration) bool
}

// Buffer coalesces rapid inbound fragments per conversation so the agent sees
// one turn instead of one turn per message.
type Buffer struct {
	store ListStore
	ttl   time.Duration
}

// NewBuffer creates a buffer on store. A non-positive ttl uses DefaultBufferTTL.
func NewBuffer(store ListStore, ttl time.Duration) *Buffer {
	if ttl <= 0 {
		ttl = DefaultBufferTTL
	}
	return &Buffer{store: store, ttl: ttl}
}

// Push appends a fragment to the conversation's buffer.
func (b *Buffer) Push(ctx context.Context, conversationID, text, messageID string) bool {
	payload, err := json.Marshal(BufferEntry{Text: text, MessageID: messageID})
	if err != nil {
		slog.Error("bus.buffer.encode", "conversation", conversationID, "error", err)
		return false
	}
	key := BufferKey(conversationID)
	if !b.store.ListPush(ctx, key, string(payload)) {
		return false
	}
	b.store.ExpireIfUnset(ctx, key, b.ttl)
	slog.Debug("bus.buffer.pushed", "conversation", conversationID)
	return true
}

// PushMessage is Push for a transport message.
func (b *Buffer) PushMessage(ctx context.Context, msg InboundMessage) bool {
	return b.Push(ctx, msg.ConversationID, msg.Content, msg.MessageID)
}

// Len returns the number of pending fragments.
func (b *Buffer) Len(ctx context.Context, conversationID string) int {
	return b.store.ListLen(ctx, BufferKey(conversationID))
}

// Drain atomically reads and clears the buffer. Texts come back in push order;
// the returned id is the last non-empty message id seen. Entries written as
// plain text by older writers are returned verbatim.
func (b *Buffer) Drain(ctx context.Context, conversationID string) ([]string, string) {
	raw := b.store.ListDrain(ctx, BufferKey(conversationID))
	if len(raw) == 0 {
		return nil, ""
	}

	texts := make([]string, 0, len(raw))
	var lastID string
	for _, item := range raw {
		text, id, structured := decodeEntry(item)
		if !structured {
			texts = append(texts, item)
			continue
		}
		if text != "" {
			texts = append(texts, text)
		}
		if id != "" {
			lastID = id
		}
	}

	slog.Info("bus.buffer.drained", "conversation", conversationID, "messages", len(texts), "last_id", lastID)
	return texts, lastID
}

// decodeEntry parses a structured payload. structured is false for legacy
// plain-text entries and for JSON that is not an object.
func decodeEntry(item string) (text, id string, structured bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(item), &obj); err != nil || obj == nil {
		return "", "", false
	}
	text, _ = obj["text"].(string)
	id, _ = obj["mid"].(string)
	return text, id, true
}
