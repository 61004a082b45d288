package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a single-process Store with the same first-writer-wins
// contract as the postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{records: map[string]*Record{}} }

func (m *MemoryStore) Reserve(_ context.Context, key, hash string, now, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok && !rec.ExpiresAt.Before(now) {
		return false, nil
	}
	m.records[key] = &Record{Key: key, RequestHash: hash, Status: InFlightStatus, CreatedAt: now, ExpiresAt: expiresAt}
	return true, nil
}

func (m *MemoryStore) Complete(_ context.Context, key, hash string, status int, body json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok && rec.RequestHash == hash {
		rec.Status = status
		rec.Body = body
	}
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok && rec.RequestHash == hash && rec.InFlight() {
		delete(m.records, key)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, rec := range m.records {
		if rec.ExpiresAt.Before(now) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}
