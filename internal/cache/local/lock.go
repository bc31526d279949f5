// Package local provides in-process implementations of the cache-layer
// collaborator interfaces (locking, quote cache, signal bus), used by the
// memory storage mode, the simulator, and tests. The redis package provides
// the distributed equivalents.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// LockManager implements domain.LockManager with an in-process mutex-guarded
// key set. Locks expire after their TTL so a crashed holder cannot wedge a
// position forever.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// Acquire takes the lock for key, returning domain.ErrLockHeld when another
// holder has it and its TTL has not lapsed. The returned unlock function is
// safe to call multiple times.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.clock()
	if expiry, ok := lm.held[key]; ok && expiry.After(now) {
		return nil, fmt.Errorf("local: lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.held[key] = now.Add(ttl)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			lm.mu.Lock()
			delete(lm.held, key)
			lm.mu.Unlock()
		})
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
