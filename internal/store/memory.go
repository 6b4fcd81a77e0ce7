package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haontuhcmut/lab-services/internal/ids"
)

// MemoryUsers is an in-memory UserStore used by tests and by local runs
// without a database.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ UserStore = (*MemoryUsers)(nil)

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User)}
}

func (m *MemoryUsers) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryUsers) SetVerified(ctx context.Context, id string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Verified = verified
	m.users[id] = u
	return nil
}

func (m *MemoryUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	m.users[id] = u
	return nil
}

// MemoryDetections is the in-memory DetectionStore counterpart.
type MemoryDetections struct {
	mu    sync.RWMutex
	items []Detection
}

var _ DetectionStore = (*MemoryDetections)(nil)

func NewMemoryDetections() *MemoryDetections {
	return &MemoryDetections{}
}

func (m *MemoryDetections) Create(ctx context.Context, d *Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = ids.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.items = append(m.items, *d)
	return nil
}

func (m *MemoryDetections) ListByUser(ctx context.Context, userID string, limit int) ([]Detection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Detection
	for _, d := range m.items {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sortNewestFirst(out)
	return clip(out, limit), nil
}

func (m *MemoryDetections) ListAll(ctx context.Context, limit int) ([]Detection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Detection, len(m.items))
	copy(out, m.items)
	sortNewestFirst(out)
	return clip(out, limit), nil
}

func sortNewestFirst(items []Detection) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func clip(items []Detection, limit int) []Detection {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
