package lock

import (
	"context"
	"time"

	"cachecluster/pkg/cacheerrors"
	"cachecluster/pkg/cachelog"
)

// Manager is the caller-facing API over a Registry: named operations for
// each acquisition shape (blocking, non-blocking, timed, exclusive,
// shared), plus convenience wrappers that pair an acquire with a
// guaranteed release.
type Manager struct {
	registry *Registry
	logger   cachelog.Logger
}

// NewManager wraps an existing Registry.
func NewManager(registry *Registry, logger cachelog.Logger) *Manager {
	if logger == nil {
		logger = cachelog.NewBasicLogger(cachelog.InfoLevel)
	}
	return &Manager{registry: registry, logger: logger}
}

// AcquireExclusiveLock blocks until an exclusive lock on key is granted or
// ctx is canceled.
func (m *Manager) AcquireExclusiveLock(ctx context.Context, key, ownerID string, ttl time.Duration) (LockEntry, error) {
	return m.registry.Acquire(ctx, key, ownerID, Exclusive, ttl)
}

// AcquireSharedLock blocks until a shared lock on key is granted or ctx is
// canceled.
func (m *Manager) AcquireSharedLock(ctx context.Context, key, ownerID string, ttl time.Duration) (LockEntry, error) {
	return m.registry.Acquire(ctx, key, ownerID, Shared, ttl)
}

// TryAcquireExclusiveLock grants immediately or returns ErrLockConflict.
func (m *Manager) TryAcquireExclusiveLock(key, ownerID string, ttl time.Duration) (LockEntry, error) {
	return m.registry.TryAcquire(key, ownerID, Exclusive, ttl)
}

// TryAcquireSharedLock grants immediately or returns ErrLockConflict.
func (m *Manager) TryAcquireSharedLock(key, ownerID string, ttl time.Duration) (LockEntry, error) {
	return m.registry.TryAcquire(key, ownerID, Shared, ttl)
}

// AcquireLockWithTimeout blocks for at most timeout waiting for the lock,
// returning ErrTimeout if it is not granted in time.
func (m *Manager) AcquireLockWithTimeout(ctx context.Context, key, ownerID string, mode Mode, ttl, timeout time.Duration) (LockEntry, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entry, err := m.registry.Acquire(waitCtx, key, ownerID, mode, ttl)
	if err != nil {
		if waitCtx.Err() != nil {
			return LockEntry{}, cacheerrors.Timeoutf("timed out waiting for %s lock on %q", mode, key)
		}
		return LockEntry{}, err
	}
	return entry, nil
}

// ReleaseLock releases lockID on behalf of ownerID.
func (m *Manager) ReleaseLock(lockID, ownerID string) error {
	return m.registry.Release(lockID, ownerID)
}

// ReleaseLockByID is an alias for ReleaseLock kept for call sites that
// only ever have the lock id at hand (no key).
func (m *Manager) ReleaseLockByID(lockID, ownerID string) error {
	return m.registry.Release(lockID, ownerID)
}

// RenewLock extends lockID's TTL by extension.
func (m *Manager) RenewLock(lockID, ownerID string, extension time.Duration) error {
	return m.registry.Renew(lockID, ownerID, extension)
}

// StartAutoRenewal renews lockID on the given interval until ctx is
// canceled or a renewal attempt fails (e.g. the lock already expired).
// It runs in its own goroutine and returns immediately.
func (m *Manager) StartAutoRenewal(ctx context.Context, lockID, ownerID string, interval, extension time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.registry.Renew(lockID, ownerID, extension); err != nil {
					m.logger.WithFields(map[string]interface{}{"lockId": lockID}).WithError(err).Warn("auto-renewal stopped")
					return
				}
			}
		}
	}()
}

// ExecuteWithExclusiveLock acquires an exclusive lock on key, runs fn, and
// releases the lock regardless of fn's outcome.
func (m *Manager) ExecuteWithExclusiveLock(ctx context.Context, key, ownerID string, ttl time.Duration, fn func() error) error {
	entry, err := m.AcquireExclusiveLock(ctx, key, ownerID, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = m.ReleaseLock(entry.ID, ownerID) }()
	return fn()
}

// ExecuteWithSharedLock acquires a shared lock on key, runs fn, and
// releases the lock regardless of fn's outcome.
func (m *Manager) ExecuteWithSharedLock(ctx context.Context, key, ownerID string, ttl time.Duration, fn func() error) error {
	entry, err := m.AcquireSharedLock(ctx, key, ownerID, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = m.ReleaseLock(entry.ID, ownerID) }()
	return fn()
}

// IsLocked reports whether key currently has any holder.
func (m *Manager) IsLocked(key string) bool {
	return m.registry.IsLocked(key)
}

// Locks returns a snapshot of every currently-held lock on resource.
func (m *Manager) Locks(resource string) []LockEntry {
	return m.registry.Locks(resource)
}

// Stats returns the registry's counters and current load.
func (m *Manager) Stats() Stats {
	return m.registry.Stats()
}
