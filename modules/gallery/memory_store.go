package gallery

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the encoded collection in memory. It runs the same codec
// as the durable backends and can be told to fail writes.
type MemoryStore struct {
	mu        sync.Mutex
	payload   []byte
	failSaves bool
	saves     int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed replaces the stored payload with raw bytes (which may be corrupt).
func (m *MemoryStore) Seed(raw []byte) {
	m.mu.Lock()
	m.payload = append([]byte(nil), raw...)
	m.mu.Unlock()
}

// FailSaves makes subsequent Save calls fail (or succeed again).
func (m *MemoryStore) FailSaves(v bool) {
	m.mu.Lock()
	m.failSaves = v
	m.mu.Unlock()
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.payload == nil {
		return nil, ErrNotFound
	}
	return decodePayload(m.payload)
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, images []Image) error {
	data, err := encodePayload(images)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSaves {
		return fmt.Errorf("%w: memory store is read-only", ErrStorage)
	}
	m.payload = data
	m.saves++
	return nil
}
