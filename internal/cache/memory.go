package cache

import (
	"sync"
	"time"

	"tokenwatch/internal/market"
)

// Memory is the short-lived in-process cache tier fronting the durable
// store. Entries expire by wall-clock comparison and are evicted lazily on
// read or in bulk by Purge.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[market.Query]entry
}

type entry struct {
	record    *market.Record
	expiresAt time.Time
}

// NewMemory builds an in-process cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[market.Query]entry)}
}

// Get returns the cached record for q, evicting it first if expired.
func (m *Memory) Get(q market.Query, now time.Time) (*market.Record, bool) {
	m.mu.RLock()
	e, ok := m.entries[q]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have refreshed it.
		if cur, ok := m.entries[q]; ok && now.After(cur.expiresAt) {
			delete(m.entries, q)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.record, true
}

// Put stores a record for q, stamped to expire ttl from now.
func (m *Memory) Put(q market.Query, rec *market.Record, now time.Time) {
	m.mu.Lock()
	m.entries[q] = entry{record: rec, expiresAt: now.Add(m.ttl)}
	m.mu.Unlock()
}

// Purge removes every expired entry and returns how many were dropped.
func (m *Memory) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for q, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, q)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
