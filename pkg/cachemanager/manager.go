// Package cachemanager implements the distributed cache manager: it routes
// each operation to the replica set the ring assigns a key, fans writes out
// to every replica, races reads against every replica, and aggregates
// cluster-wide statistics.
//
// Writes dispatch over a bounded LimitedErrGroup and wait for every
// replica to finish before returning, aggregating with an explicit
// any-success rule rather than firing writes off and forgetting them.
// Reads race all replicas and return on first success.
package cachemanager

import (
	"context"
	"sync"
	"time"

	"cachecluster/pkg/cacheentry"
	"cachecluster/pkg/cachelog"
	"cachecluster/pkg/engine"
	"cachecluster/pkg/helper/util"
	"cachecluster/pkg/ring"
)

// NodeEngine is the subset of engine.Engine's contract the manager needs
// to drive a single node's local store. engine.Engine satisfies this
// interface structurally; a persistence-backed implementation can be
// substituted without the manager changing.
type NodeEngine interface {
	Set(key string, value []byte, ttl time.Duration, dataType cacheentry.DataType) bool
	Get(key string) ([]byte, bool)
	Delete(key string) bool
	Exists(key string) bool
	Expire(key string, ttl time.Duration) bool
	TTL(key string) int64
	Flush()
	Stats() engine.Stats
}

// Config tunes the manager's replication and quorum behavior.
type Config struct {
	ReplicationFactor int           // replica-set size per key; 1 disables replication
	WriteQuorum       int           // advisory; default 1 (any-success)
	ReadQuorum        int           // advisory; default 1 (first-success)
	SetTimeout        time.Duration // default 5s
	FlushTimeout      time.Duration // default 10s
	MaxConcurrency    int           // bounded fan-out width; 0 = unlimited
}

func (c Config) withDefaults() Config {
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
	if c.WriteQuorum <= 0 {
		c.WriteQuorum = 1
	}
	if c.ReadQuorum <= 0 {
		c.ReadQuorum = 1
	}
	if c.SetTimeout <= 0 {
		c.SetTimeout = 5 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 10 * time.Second
	}
	return c
}

// Manager is the distributed cache manager.
type Manager struct {
	mu     sync.RWMutex
	ring   *ring.Ring
	nodes  map[string]NodeEngine
	cfg    Config
	logger cachelog.Logger
}

// New constructs a Manager over an existing ring.
func New(r *ring.Ring, cfg Config, logger cachelog.Logger) *Manager {
	if logger == nil {
		logger = cachelog.NewBasicLogger(cachelog.InfoLevel)
	}
	cfg = cfg.withDefaults()
	if cfg.WriteQuorum+cfg.ReadQuorum <= cfg.ReplicationFactor {
		logger.WithFields(map[string]interface{}{
			"writeQuorum":       cfg.WriteQuorum,
			"readQuorum":        cfg.ReadQuorum,
			"replicationFactor": cfg.ReplicationFactor,
		}).Warn("write quorum + read quorum does not exceed replication factor; this cluster cannot guarantee overlap")
	}
	return &Manager{
		ring:   r,
		nodes:  make(map[string]NodeEngine),
		cfg:    cfg,
		logger: logger,
	}
}

// AddNode registers a node's local engine and places it on the ring.
func (m *Manager) AddNode(id string, e NodeEngine) {
	m.mu.Lock()
	m.nodes[id] = e
	m.mu.Unlock()
	m.ring.AddNode(id)
}

// RemoveNode takes a node off the ring and out of the manager. Per-key
// routing simply changes; existing keys on the removed node are not moved
// (no rebalancing is performed on topology change).
func (m *Manager) RemoveNode(id string) {
	m.ring.RemoveNode(id)
	m.mu.Lock()
	delete(m.nodes, id)
	m.mu.Unlock()
}

// ReplicationNodes returns the ordered replica set for key: the primary
// first, followed by ReplicationFactor-1 further distinct replicas.
func (m *Manager) ReplicationNodes(key string) []string {
	if m.cfg.ReplicationFactor <= 1 {
		primary, ok := m.ring.GetNode(key)
		if !ok {
			return nil
		}
		return []string{primary}
	}
	return m.ring.GetNodes(key, m.cfg.ReplicationFactor)
}

func (m *Manager) engineFor(id string) (NodeEngine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.nodes[id]
	return e, ok
}

// Set fans the write out to every replica in parallel and waits for all of
// them; success is reported iff at least one replica succeeded.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, dataType cacheentry.DataType) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SetTimeout)
	defer cancel()

	replicas := m.ReplicationNodes(key)
	if len(replicas) == 0 {
		return false
	}

	var succeeded atomic32
	group := util.NewLimitedErrGroup(ctx, m.cfg.MaxConcurrency)
	for _, nodeID := range replicas {
		nodeID := nodeID
		group.Go(func() error {
			e, ok := m.engineFor(nodeID)
			if !ok {
				return nil
			}
			if e.Set(key, value, ttl, dataType) {
				succeeded.setTrue()
			}
			return nil
		})
	}
	_ = group.Wait()
	return succeeded.get()
}

// Get races every replica in parallel and returns the first hit,
// cancelling the rest once a winner is chosen. Misses are skipped; it
// reports not-found only after every replica has missed.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SetTimeout)
	defer cancel()

	replicas := m.ReplicationNodes(key)
	if len(replicas) == 0 {
		return nil, false
	}

	type result struct {
		value []byte
		ok    bool
	}
	resultCh := make(chan result, len(replicas))
	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	var wg sync.WaitGroup
	for _, nodeID := range replicas {
		nodeID := nodeID
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, ok := m.engineFor(nodeID)
			if !ok {
				return
			}
			value, hit := e.Get(key)
			select {
			case resultCh <- result{value: value, ok: hit}:
			case <-raceCtx.Done():
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		if r.ok {
			raceCancel()
			return r.value, true
		}
	}
	return nil, false
}

// Delete fans the delete out to every replica; success iff at least one
// replica had the key.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SetTimeout)
	defer cancel()

	replicas := m.ReplicationNodes(key)
	if len(replicas) == 0 {
		return false
	}

	var succeeded atomic32
	group := util.NewLimitedErrGroup(ctx, m.cfg.MaxConcurrency)
	for _, nodeID := range replicas {
		nodeID := nodeID
		group.Go(func() error {
			e, ok := m.engineFor(nodeID)
			if !ok {
				return nil
			}
			if e.Delete(key) {
				succeeded.setTrue()
			}
			return nil
		})
	}
	_ = group.Wait()
	return succeeded.get()
}

// Exists races every replica, same shape as Get.
func (m *Manager) Exists(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SetTimeout)
	defer cancel()

	replicas := m.ReplicationNodes(key)
	if len(replicas) == 0 {
		return false
	}

	resultCh := make(chan bool, len(replicas))
	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	var wg sync.WaitGroup
	for _, nodeID := range replicas {
		nodeID := nodeID
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, ok := m.engineFor(nodeID)
			if !ok {
				return
			}
			select {
			case resultCh <- e.Exists(key):
			case <-raceCtx.Done():
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for exists := range resultCh {
		if exists {
			raceCancel()
			return true
		}
	}
	return false
}

// Expire fans out to every replica; success iff at least one succeeded.
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SetTimeout)
	defer cancel()

	replicas := m.ReplicationNodes(key)
	if len(replicas) == 0 {
		return false
	}

	var succeeded atomic32
	group := util.NewLimitedErrGroup(ctx, m.cfg.MaxConcurrency)
	for _, nodeID := range replicas {
		nodeID := nodeID
		group.Go(func() error {
			e, ok := m.engineFor(nodeID)
			if !ok {
				return nil
			}
			if e.Expire(key, ttl) {
				succeeded.setTrue()
			}
			return nil
		})
	}
	_ = group.Wait()
	return succeeded.get()
}

// TTL is directed only to the primary replica, never fanned out.
func (m *Manager) TTL(key string) int64 {
	primary, ok := m.ring.GetNode(key)
	if !ok {
		return -2
	}
	e, ok := m.engineFor(primary)
	if !ok {
		return -2
	}
	return e.TTL(key)
}

// Flush clears every known local engine; it is not routed by hash.
func (m *Manager) Flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.FlushTimeout)
	defer cancel()

	m.mu.RLock()
	engines := make([]NodeEngine, 0, len(m.nodes))
	for _, e := range m.nodes {
		engines = append(engines, e)
	}
	m.mu.RUnlock()

	group := util.NewLimitedErrGroup(ctx, m.cfg.MaxConcurrency)
	for _, e := range engines {
		e := e
		group.Go(func() error {
			e.Flush()
			return nil
		})
	}
	_ = group.Wait()
}

// ClusterStats aggregates per-node engine stats and ring distribution
// stats.
type ClusterStats struct {
	PerNode      map[string]engine.Stats
	Distribution ring.DistributionStats
}

// ClusterStats returns a snapshot of the whole cluster's stats.
func (m *Manager) ClusterStats() ClusterStats {
	m.mu.RLock()
	perNode := make(map[string]engine.Stats, len(m.nodes))
	for id, e := range m.nodes {
		perNode[id] = e.Stats()
	}
	m.mu.RUnlock()

	return ClusterStats{PerNode: perNode, Distribution: m.ring.DistributionStats()}
}

// NodeIDs returns the ids of every node currently registered.
func (m *Manager) NodeIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	return ids
}

// atomic32 is a tiny mutex-guarded "any succeeded" flag.
type atomic32 struct {
	mu    sync.Mutex
	value bool
}

func (a *atomic32) setTrue() {
	a.mu.Lock()
	a.value = true
	a.mu.Unlock()
}

func (a *atomic32) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

