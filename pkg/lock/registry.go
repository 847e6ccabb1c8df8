package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cachecluster/pkg/cacheerrors"
	"cachecluster/pkg/cachelog"
)

const defaultTTL = 30 * time.Second
const defaultSweepInterval = 5 * time.Second

// Stats is a snapshot of a Registry's lifetime counters and current load.
type Stats struct {
	Acquires    int64
	Releases    int64
	Timeouts    int64
	Conflicts   int64
	Expirations int64
	Keys        int
	Holders     int
	Waiters     int
}

type waiter struct {
	id       string
	ownerID  string
	mode     Mode
	ttl      time.Duration
	resultCh chan acquireResult
}

type acquireResult struct {
	entry LockEntry
	err   error
}

type keyState struct {
	holders map[string]*LockEntry
	mode    Mode
	queue   []*waiter
}

// Registry holds the wait-queue and holder state for every locked key.
// Registry is an explicit value a caller constructs and wires up, rather
// than a process-wide singleton; DefaultRegistry below offers the
// singleton shape for callers who want it without forcing it on everyone.
type Registry struct {
	mu   sync.Mutex
	keys map[string]*keyState
	byID map[string]string // lockID -> key

	logger cachelog.Logger

	maxRenewals   int // 0 means unlimited
	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepWg       sync.WaitGroup
	started       atomic.Bool

	acquires    atomic.Int64
	releases    atomic.Int64
	timeouts    atomic.Int64
	conflicts   atomic.Int64
	expirations atomic.Int64
}

// NewRegistry creates a Registry and starts its TTL sweeper. maxRenewals
// bounds how many times any lock granted by this registry may be renewed
// before RenewLock starts failing; 0 means unlimited.
func NewRegistry(logger cachelog.Logger, sweepInterval time.Duration, maxRenewals int) *Registry {
	if logger == nil {
		logger = cachelog.NewBasicLogger(cachelog.InfoLevel)
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	r := &Registry{
		keys:          make(map[string]*keyState),
		byID:          make(map[string]string),
		logger:        logger,
		maxRenewals:   maxRenewals,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}
	r.started.Store(true)
	r.sweepWg.Add(1)
	go r.sweepLoop()
	return r
}

// Shutdown stops the TTL sweeper. Safe to call more than once.
func (r *Registry) Shutdown() {
	if !r.started.CompareAndSwap(true, false) {
		return
	}
	close(r.stopSweep)
	r.sweepWg.Wait()
}

// Clear releases every lock and drops every waiter, rejecting each with
// ErrRegistryShutdown. Intended for test teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ks := range r.keys {
		for _, w := range ks.queue {
			w.resultCh <- acquireResult{err: fmt.Errorf("%w: registry cleared", cacheerrors.ErrRegistryShutdown)}
		}
	}
	r.keys = make(map[string]*keyState)
	r.byID = make(map[string]string)
}

func (r *Registry) keyStateLocked(key string) *keyState {
	ks, ok := r.keys[key]
	if !ok {
		ks = &keyState{holders: make(map[string]*LockEntry)}
		r.keys[key] = ks
	}
	return ks
}

func canGrantLocked(ks *keyState, mode Mode) bool {
	if len(ks.queue) > 0 {
		return false
	}
	if len(ks.holders) == 0 {
		return true
	}
	return compatible(ks.mode, mode)
}

func (r *Registry) grantLocked(ks *keyState, key, ownerID string, mode Mode, ttl time.Duration) LockEntry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	entry := &LockEntry{
		ID:              uuid.NewString(),
		Key:             key,
		Mode:            mode,
		OwnerID:         ownerID,
		AcquiredAt:      now,
		ExpiresAt:       now.Add(ttl),
		MaxRenewalCount: r.maxRenewals,
	}
	ks.holders[entry.ID] = entry
	ks.mode = mode
	r.byID[entry.ID] = key
	r.acquires.Add(1)
	return *entry
}

// Acquire blocks until a lock on key is granted in the given mode, ctx is
// canceled, or Clear rejects the waiter. ttl<=0 uses the registry's
// default TTL.
func (r *Registry) Acquire(ctx context.Context, key, ownerID string, mode Mode, ttl time.Duration) (LockEntry, error) {
	r.mu.Lock()
	ks := r.keyStateLocked(key)

	if canGrantLocked(ks, mode) {
		entry := r.grantLocked(ks, key, ownerID, mode, ttl)
		r.mu.Unlock()
		return entry, nil
	}

	w := &waiter{id: uuid.NewString(), ownerID: ownerID, mode: mode, ttl: ttl, resultCh: make(chan acquireResult, 1)}
	ks.queue = append(ks.queue, w)
	r.mu.Unlock()

	select {
	case res := <-w.resultCh:
		return res.entry, res.err
	case <-ctx.Done():
		r.mu.Lock()
		r.removeWaiterLocked(key, w.id)
		r.mu.Unlock()
		r.timeouts.Add(1)
		return LockEntry{}, ctx.Err()
	}
}

// TryAcquire grants immediately or fails with ErrLockConflict; it never
// queues.
func (r *Registry) TryAcquire(key, ownerID string, mode Mode, ttl time.Duration) (LockEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ks := r.keyStateLocked(key)
	if !canGrantLocked(ks, mode) {
		r.conflicts.Add(1)
		return LockEntry{}, cacheerrors.LockConflictf("lock %q is held incompatibly with %s", key, mode)
	}
	return r.grantLocked(ks, key, ownerID, mode, ttl), nil
}

func (r *Registry) removeWaiterLocked(key, waiterID string) {
	ks, ok := r.keys[key]
	if !ok {
		return
	}
	for i, w := range ks.queue {
		if w.id == waiterID {
			ks.queue = append(ks.queue[:i], ks.queue[i+1:]...)
			return
		}
	}
}

// grantNextLocked is called once a key's holder set becomes empty. It pops
// a single exclusive waiter, or batch-grants a contiguous run of leading
// shared waiters, whichever the front of the queue calls for.
func (r *Registry) grantNextLocked(ks *keyState, key string) {
	if len(ks.queue) == 0 {
		return
	}

	front := ks.queue[0]
	if front.mode == Exclusive {
		entry := r.grantLocked(ks, key, front.ownerID, front.mode, front.ttl)
		ks.queue = ks.queue[1:]
		front.resultCh <- acquireResult{entry: entry}
		return
	}

	i := 0
	for i < len(ks.queue) && ks.queue[i].mode == Shared {
		w := ks.queue[i]
		entry := r.grantLocked(ks, key, w.ownerID, w.mode, w.ttl)
		w.resultCh <- acquireResult{entry: entry}
		i++
	}
	ks.queue = ks.queue[i:]
}

// Release releases lockID if ownerID matches its current owner.
func (r *Registry) Release(lockID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[lockID]
	if !ok {
		return cacheerrors.NotFoundf("lock %q not found", lockID)
	}
	ks := r.keys[key]
	entry, ok := ks.holders[lockID]
	if !ok {
		return cacheerrors.NotFoundf("lock %q not found", lockID)
	}
	if entry.OwnerID != ownerID {
		return cacheerrors.InvalidInputf("lock %q is not owned by %q", lockID, ownerID)
	}

	delete(ks.holders, lockID)
	delete(r.byID, lockID)
	r.releases.Add(1)

	if len(ks.holders) == 0 {
		r.grantNextLocked(ks, key)
	}
	return nil
}

// Renew extends lockID's TTL by extension if ownerID matches. It fails
// once the lock's renewal count has reached its MaxRenewalCount (0 means
// unlimited); each successful call increments RenewalCount, so Renew is
// not idempotent.
func (r *Registry) Renew(lockID, ownerID string, extension time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[lockID]
	if !ok {
		return cacheerrors.NotFoundf("lock %q not found", lockID)
	}
	ks := r.keys[key]
	entry, ok := ks.holders[lockID]
	if !ok {
		return cacheerrors.NotFoundf("lock %q not found", lockID)
	}
	if entry.OwnerID != ownerID {
		return cacheerrors.InvalidInputf("lock %q is not owned by %q", lockID, ownerID)
	}
	if entry.MaxRenewalCount > 0 && entry.RenewalCount >= entry.MaxRenewalCount {
		return cacheerrors.MaxRenewalsf("lock %q has reached its renewal limit of %d", lockID, entry.MaxRenewalCount)
	}
	if extension <= 0 {
		extension = defaultTTL
	}
	entry.ExpiresAt = time.Now().Add(extension)
	entry.RenewalCount++
	return nil
}

// IsLocked reports whether key currently has any holder.
func (r *Registry) IsLocked(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ks, ok := r.keys[key]
	return ok && len(ks.holders) > 0
}

// Locks returns a snapshot of every currently-held lock on resource.
func (r *Registry) Locks(resource string) []LockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ks, ok := r.keys[resource]
	if !ok {
		return nil
	}
	var out []LockEntry
	for _, entry := range ks.holders {
		out = append(out, *entry)
	}
	return out
}

// Stats returns a snapshot of the registry's counters and current load.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	holders, waiters := 0, 0
	for _, ks := range r.keys {
		holders += len(ks.holders)
		waiters += len(ks.queue)
	}

	return Stats{
		Acquires:    r.acquires.Load(),
		Releases:    r.releases.Load(),
		Timeouts:    r.timeouts.Load(),
		Conflicts:   r.conflicts.Load(),
		Expirations: r.expirations.Load(),
		Keys:        len(r.keys),
		Holders:     holders,
		Waiters:     waiters,
	}
}

func (r *Registry) sweepLoop() {
	defer r.sweepWg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, ks := range r.keys {
		expired := make([]string, 0)
		for id, entry := range ks.holders {
			if entry.Expired(now) {
				expired = append(expired, id)
			}
		}
		for _, id := range expired {
			delete(ks.holders, id)
			delete(r.byID, id)
			r.expirations.Add(1)
			r.logger.WithFields(map[string]interface{}{"key": key, "lockId": id}).Warn("lock expired without release")
		}
		if len(expired) > 0 && len(ks.holders) == 0 {
			r.grantNextLocked(ks, key)
		}
	}
}

var (
	defaultRegistryMu sync.Mutex
	defaultRegistry   *Registry
)

// DefaultRegistry returns a lazily-initialized process-wide Registry for
// callers that want singleton behavior; it is never created implicitly by
// any other function in this package.
func DefaultRegistry() *Registry {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(nil, 0, 0)
	}
	return defaultRegistry
}

// ResetDefaultRegistry shuts down and discards the process-wide registry,
// so the next DefaultRegistry call builds a fresh one. Intended for tests.
func ResetDefaultRegistry() {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()
	if defaultRegistry != nil {
		defaultRegistry.Shutdown()
		defaultRegistry = nil
	}
}
