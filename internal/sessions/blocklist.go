package sessions

import "sync"

// BlockList holds conversation ids whose inbound messages are ignored.
// Safe for concurrent use; Replace swaps the whole set.
type BlockList struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewBlockList builds a list from raw numbers. Entries that do not
// normalize to an id are dropped.
func NewBlockList(numbers []string) *BlockList {
	b := &BlockList{}
	b.Replace(numbers)
	return b
}

// Replace swaps the blocked set.
func (b *BlockList) Replace(numbers []string) {
	ids := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		if id, err := NormalizeConversationID(n); err == nil {
			ids[id] = struct{}{}
		}
	}
	b.mu.Lock()
	b.ids = ids
	b.mu.Unlock()
}

// Blocked reports whether the (raw or normalized) id is on the list.
func (b *BlockList) Blocked(raw string) bool {
	id, err := NormalizeConversationID(raw)
	if err != nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[id]
	return ok
}

// Len returns the number of blocked ids.
func (b *BlockList) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}
