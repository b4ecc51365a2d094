package kvstore

import "sync"

// memoryStore is the in-process fallback. It keeps the Redis key layout but
// enforces no expiry and loses everything on restart.
type memoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
	}
}

func (m *memoryStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	return v, ok
}

func (m *memoryStore) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
}

func (m *memoryStore) push(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
}

func (m *memoryStore) length(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

func (m *memoryStore) drain(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := m.lists[key]
	delete(m.lists, key)
	return values
}

func (m *memoryStore) del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	delete(m.lists, key)
}
