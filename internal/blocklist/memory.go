package blocklist

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store with per-key expiry, used by tests and by
// local runs without Redis. Expired entries are dropped lazily on lookup.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

// NewMemoryWithClock builds a Memory store with an overridden time source.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]time.Time), now: now}
}

func (m *Memory) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = m.now().Add(ttl)
	return nil
}

func (m *Memory) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if m.now().After(deadline) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}
