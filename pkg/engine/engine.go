// Package engine implements the local cache engine: a single node's bounded,
// in-memory key-value store with TTL expiry and pluggable eviction.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"cachecluster/pkg/cacheentry"
	"cachecluster/pkg/cachelog"
	"cachecluster/pkg/eviction"
)

// Stats is a snapshot of an engine's lifetime counters plus its current size.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// Options configures a new Engine.
type Options struct {
	MaxSize       int           // 0 disables storage entirely (always-miss boundary case)
	Policy        eviction.Kind // defaults to LRU
	SweepInterval time.Duration // 0 means the 1s default; <0 disables the background sweeper
	Logger        cachelog.Logger
}

// Engine is a bounded, thread-safe, single-node cache store.
type Engine struct {
	mu      sync.RWMutex
	data    map[string]*cacheentry.Entry
	policy  eviction.Policy
	maxSize int
	logger  cachelog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepWg       sync.WaitGroup
	started       atomic.Bool
}

// New constructs an Engine and starts its background expiry sweeper.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = cachelog.NewBasicLogger(cachelog.InfoLevel)
	}
	sweep := opts.SweepInterval
	if sweep == 0 {
		sweep = time.Second
	}
	e := &Engine{
		data:          make(map[string]*cacheentry.Entry),
		policy:        eviction.New(opts.Policy),
		maxSize:       opts.MaxSize,
		logger:        logger,
		sweepInterval: sweep,
		stopSweep:     make(chan struct{}),
	}
	if sweep > 0 {
		e.started.Store(true)
		e.sweepWg.Add(1)
		go e.sweepLoop()
	}
	return e
}

// Set stores value under key with the given TTL (ttl<=0 means no expiry)
// and data type tag. Returns false only for the maxSize==0 boundary case.
func (e *Engine) Set(key string, value []byte, ttl time.Duration, dataType cacheentry.DataType) bool {
	if e.maxSize == 0 {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.data[key]; ok {
		existing.Value = value
		existing.DataType = dataType
		existing.SetTTL(ttl)
		e.policy.OnInsert(key)
		return true
	}

	if len(e.data) >= e.maxSize {
		if victim, ok := e.policy.SelectVictim(); ok {
			delete(e.data, victim)
			e.policy.OnRemove(victim)
			e.evictions.Add(1)
			e.logger.WithField("key", victim).Debug("evicted key to make room")
		}
	}

	entry := cacheentry.New(value, dataType)
	entry.SetTTL(ttl)
	e.data[key] = entry
	e.policy.OnInsert(key)
	return true
}

// Get returns the value for key and true, or nil/false if absent or
// expired. A lazily-discovered expired entry is removed and reported as a
// miss.
func (e *Engine) Get(key string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.data[key]
	if !ok {
		e.misses.Add(1)
		return nil, false
	}
	if entry.Expired(time.Now()) {
		delete(e.data, key)
		e.policy.OnRemove(key)
		e.misses.Add(1)
		return nil, false
	}

	entry.Touch()
	e.policy.OnAccess(key)
	e.hits.Add(1)
	return entry.Value, true
}

// Delete removes key. Idempotent: returns true only if key was present.
func (e *Engine) Delete(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.data[key]; !ok {
		return false
	}
	delete(e.data, key)
	e.policy.OnRemove(key)
	return true
}

// Exists reports whether key is present and unexpired, without touching
// access metadata.
func (e *Engine) Exists(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.data[key]
	if !ok {
		return false
	}
	return !entry.Expired(time.Now())
}

// Expire sets a new TTL on an existing key. Returns false if key is absent
// or already expired.
func (e *Engine) Expire(key string, ttl time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.data[key]
	if !ok || entry.Expired(time.Now()) {
		return false
	}
	entry.SetTTL(ttl)
	return true
}

// TTL returns remaining seconds until expiry: -2 if key is absent or
// expired, -1 if it has no TTL, else the non-negative remaining seconds.
func (e *Engine) TTL(key string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.data[key]
	if !ok {
		return -2
	}
	now := time.Now()
	if entry.Expired(now) {
		return -2
	}
	return entry.TTLRemaining(now)
}

// Flush removes every key.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.data {
		e.policy.OnRemove(key)
	}
	e.data = make(map[string]*cacheentry.Entry)
}

// Stats returns a snapshot of the engine's counters and current size.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	size := int64(len(e.data))
	e.mu.RUnlock()

	return Stats{
		Hits:      e.hits.Load(),
		Misses:    e.misses.Load(),
		Evictions: e.evictions.Load(),
		Size:      size,
	}
}

// Shutdown stops the background sweeper. Safe to call more than once.
func (e *Engine) Shutdown() {
	if !e.started.CompareAndSwap(true, false) {
		return
	}
	close(e.stopSweep)
	e.sweepWg.Wait()
}

func (e *Engine) sweepLoop() {
	defer e.sweepWg.Done()
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweep()
		case <-e.stopSweep:
			return
		}
	}
}

func (e *Engine) sweep() {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, entry := range e.data {
		if entry.Expired(now) {
			delete(e.data, key)
			e.policy.OnRemove(key)
		}
	}
}
