package oauthstate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state   State
	expires time.Time
}

// MemoryStore keeps states in process. It only works with a single replica.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Save stores st under nonce until ttl elapses.
func (m *MemoryStore) Save(_ context.Context, nonce string, st State, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[nonce] = memoryEntry{state: st, expires: now.Add(ttl)}
	return nil
}

// Consume returns and forgets the state saved under nonce.
func (m *MemoryStore) Consume(_ context.Context, nonce string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[nonce]
	if !ok {
		return State{}, ErrInvalidState
	}
	delete(m.entries, nonce)
	if m.now().After(e.expires) {
		return State{}, ErrInvalidState
	}
	return e.state, nil
}
