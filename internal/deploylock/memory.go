package deploylock

import (
	"context"
	"sync"
	"time"
)

type memoryLease struct {
	holder    string
	expiresAt time.Time
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease), now: time.Now}
}

// TryAcquire implements Locker.
func (m *MemoryLocker) TryAcquire(_ context.Context, group, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.leases[group]; ok && cur.holder != holder && now.Before(cur.expiresAt) {
		return false, nil
	}
	m.leases[group] = memoryLease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release implements Locker.
func (m *MemoryLocker) Release(_ context.Context, group, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[group]; ok && cur.holder == holder {
		delete(m.leases, group)
	}
	return nil
}

// Close implements Locker.
func (m *MemoryLocker) Close() error { return nil }
