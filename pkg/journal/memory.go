package journal

import (
	"context"
	"sync"
)

// MemoryStorage keeps the most recent events in a fixed-size ring buffer.
// All events are lost when the process exits.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

// NewMemoryStorage creates a ring buffer holding capacity events.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStorage{events: make([]Event, capacity)}
}

// Append stores event, overwriting the oldest one when full.
func (m *MemoryStorage) Append(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.next] = event
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit <= 0 returns
// everything held.
func (m *MemoryStorage) Recent(ctx context.Context, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.next
	if m.full {
		size = len(m.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.next - 1 - i + len(m.events)) % len(m.events)
		out = append(out, m.events[idx])
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}
