package activity

import (
	"context"
	"sync"
)

// DefaultMaxEntries is how many entries MemoryLog keeps when no limit is given.
const DefaultMaxEntries = 100

// MemoryLog keeps the newest entries in memory, dropping the oldest.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

// NewMemoryLog creates a log holding at most max entries.
func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &MemoryLog{max: max}
}

// Record implements Recorder.
func (m *MemoryLog) Record(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	if over := len(m.entries) - m.max; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (m *MemoryLog) Recent(_ context.Context, limit int) ([]Entry, error) {
	return m.recent(limit), nil
}

func (m *MemoryLog) recent(limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.entries[i])
	}
	return out
}

// Len returns the number of entries held.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops every entry.
func (m *MemoryLog) Clear() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}
