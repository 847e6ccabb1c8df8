// Package health implements the defensive health monitor: a liveness
// check independent of cluster heartbeats, socket-probing each known node
// on a fixed cadence and tracking its status transitions.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cachecluster/pkg/cachelog"
	"cachecluster/pkg/cachenode"
)

const (
	defaultDialTimeout    = 2 * time.Second
	defaultGlobalDeadline = 30 * time.Second
	defaultCheckInterval  = 60 * time.Second
)

// Pinger optionally pings a node's local cache through the manager once
// the socket probe succeeds. Failure here maps to DEGRADED rather than
// UNREACHABLE: the node answered TCP but the cache itself did not.
type Pinger interface {
	Ping(ctx context.Context, nodeID string) error
}

// NodeHealthState is the monitor's tracked state for one node.
type NodeHealthState struct {
	NodeID          string
	PreviousStatus  cachenode.Status
	CurrentStatus   cachenode.Status
	FailureCount    int
	LastCheck       time.Time
	LastResult      string
	LastResponse    time.Duration
}

// TransitionEvent describes a status change observed during a check.
type TransitionEvent struct {
	NodeID   string
	Previous cachenode.Status
	Current  cachenode.Status
	Critical bool
	At       time.Time
}

// TransitionFunc is called whenever a node's status changes.
type TransitionFunc func(TransitionEvent)

// Config tunes the monitor's cadence and probe timeouts.
type Config struct {
	CheckInterval  time.Duration // default 60s
	DialTimeout    time.Duration // default 2s
	GlobalDeadline time.Duration // default 30s
	Concurrency    int           // bounded probe fan-out; 0 = one worker per CPU
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.GlobalDeadline <= 0 {
		c.GlobalDeadline = defaultGlobalDeadline
	}
	return c
}

// Monitor runs defensive liveness probes against every node the discovery
// collaborator reports, independent of any heartbeat mechanism the
// cluster's membership protocol might also use.
type Monitor struct {
	discovery ServiceDiscovery
	pinger    Pinger
	cfg       Config
	logger    cachelog.Logger

	mu     sync.RWMutex
	states map[string]*NodeHealthState

	onTransition []TransitionFunc

	pool *ProbePool

	cron        *cron.Cron
	cronEntry   cron.EntryID
	cronStarted bool
}

// NewMonitor constructs a Monitor. pinger may be nil, in which case the
// cache-ping probe step is skipped and a bare socket connect is sufficient
// for HEALTHY.
func NewMonitor(discovery ServiceDiscovery, pinger Pinger, cfg Config, logger cachelog.Logger) *Monitor {
	if logger == nil {
		logger = cachelog.NewBasicLogger(cachelog.InfoLevel)
	}
	cfg = cfg.withDefaults()
	pool := NewProbePool(PoolOptions{Workers: cfg.Concurrency, Logger: logger, TaskTimeout: cfg.DialTimeout + time.Second})
	pool.Start()
	return &Monitor{
		discovery: discovery,
		pinger:    pinger,
		cfg:       cfg,
		logger:    logger,
		states:    make(map[string]*NodeHealthState),
		pool:      pool,
		cron:      cron.New(),
	}
}

// OnTransition registers a callback invoked whenever a node's status
// changes, covering every transition rather than just the
// healthy/unhealthy edge.
func (m *Monitor) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = append(m.onTransition, fn)
}

// Start schedules PerformDefensiveCheck on the configured cadence using a
// cron expression derived from CheckInterval (every N seconds).
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cronStarted {
		m.mu.Unlock()
		return nil
	}
	spec := fmt.Sprintf("@every %s", m.cfg.CheckInterval)
	entryID, err := m.cron.AddFunc(spec, func() {
		if err := m.PerformDefensiveCheck(ctx); err != nil {
			m.logger.Error("defensive health sweep failed", err)
		}
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.cronEntry = entryID
	m.cronStarted = true
	m.mu.Unlock()

	m.cron.Start()
	return nil
}

// Stop halts the cron schedule. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.cronStarted {
		m.mu.Unlock()
		return
	}
	m.cronStarted = false
	m.mu.Unlock()

	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	m.pool.Stop()
}

// PerformDefensiveCheck probes every node known to the discovery
// collaborator in parallel, bounded by the monitor's global deadline.
func (m *Monitor) PerformDefensiveCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.GlobalDeadline)
	defer cancel()

	nodes, err := m.discovery.GetAllNodes(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, node := range nodes {
		node := node
		wg.Add(1)
		if err := m.pool.Submit(func(probeCtx context.Context) error {
			defer wg.Done()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.checkNode(probeCtx, node)
			return nil
		}); err != nil {
			wg.Done()
			m.logger.WithField("nodeId", node.NodeID).Error("failed to submit health probe", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckNode runs an on-demand probe against a single node, identified by
// id, outside the regular cadence. The first step looks the id up against
// the discovery collaborator; an id discovery does not know about
// resolves to StatusNotFound without dialing anything.
func (m *Monitor) CheckNode(ctx context.Context, nodeID string) NodeHealthState {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.GlobalDeadline)
	defer cancel()

	node, found, err := m.discovery.GetNode(ctx, nodeID)
	if err != nil || !found {
		m.recordResult(nodeID, cachenode.StatusNotFound, "node not found in discovery", 0)
		state, _ := m.State(nodeID)
		return state
	}

	m.checkNode(ctx, node)
	state, _ := m.State(nodeID)
	return state
}

func (m *Monitor) checkNode(ctx context.Context, node DiscoveredNode) {
	status, detail, latency := m.probe(ctx, node)
	m.recordResult(node.NodeID, status, detail, latency)
}

// probe performs the ordered check sequence from stale detection through
// the cache ping, returning the first failing step's status. The
// existence check against discovery happens one level up, in CheckNode;
// PerformDefensiveCheck only ever calls probe with nodes discovery itself
// just returned, so probe can assume the node is known.
func (m *Monitor) probe(ctx context.Context, node DiscoveredNode) (cachenode.Status, string, time.Duration) {
	if src, ok := m.discovery.(HeartbeatSource); ok {
		if last, known := src.LastHeartbeat(node.NodeID); known {
			if time.Since(last) > m.cfg.CheckInterval*3 {
				return cachenode.StatusStale, "no heartbeat within stale threshold", 0
			}
		}
	}

	start := time.Now()
	addr := fmt.Sprintf("%s:%d", node.Host, node.Port)
	conn, err := net.DialTimeout("tcp", addr, m.cfg.DialTimeout)
	if err != nil {
		return cachenode.StatusUnreachable, err.Error(), time.Since(start)
	}
	_ = conn.Close()
	latency := time.Since(start)

	if m.pinger != nil {
		if err := m.pinger.Ping(ctx, node.NodeID); err != nil {
			return cachenode.StatusDegraded, err.Error(), latency
		}
	}

	return cachenode.StatusHealthy, "ok", latency
}

func (m *Monitor) recordResult(nodeID string, status cachenode.Status, detail string, latency time.Duration) {
	m.mu.Lock()
	state, ok := m.states[nodeID]
	if !ok {
		state = &NodeHealthState{NodeID: nodeID, CurrentStatus: cachenode.StatusUnknown}
		m.states[nodeID] = state
	}

	previous := state.CurrentStatus
	state.PreviousStatus = previous
	state.CurrentStatus = status
	state.LastCheck = time.Now()
	state.LastResult = detail
	state.LastResponse = latency
	if status == cachenode.StatusHealthy {
		state.FailureCount = 0
	} else {
		state.FailureCount++
	}
	callbacks := append([]TransitionFunc(nil), m.onTransition...)
	m.mu.Unlock()

	if previous == status {
		return
	}

	critical := status == cachenode.StatusUnreachable
	event := TransitionEvent{NodeID: nodeID, Previous: previous, Current: status, Critical: critical, At: time.Now()}

	fields := map[string]interface{}{"nodeId": nodeID, "previous": previous.String(), "current": status.String()}
	if critical {
		m.logger.WithFields(fields).Warn("critical node health transition")
	} else {
		m.logger.WithFields(fields).Info("node health transition")
	}

	for _, cb := range callbacks {
		cb(event)
	}
}

// State returns a node's current tracked health state.
func (m *Monitor) State(nodeID string) (NodeHealthState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[nodeID]
	if !ok {
		return NodeHealthState{}, false
	}
	return *state, true
}

// States returns a snapshot of every tracked node's health state.
func (m *Monitor) States() []NodeHealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeHealthState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, *s)
	}
	return out
}

// HealthyNodes returns the ids of every node currently HEALTHY.
func (m *Monitor) HealthyNodes() []string {
	return m.nodesWithStatus(cachenode.StatusHealthy)
}

// UnhealthyNodes returns the ids of every node not currently HEALTHY.
func (m *Monitor) UnhealthyNodes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, s := range m.states {
		if s.CurrentStatus != cachenode.StatusHealthy {
			out = append(out, id)
		}
	}
	return out
}

func (m *Monitor) nodesWithStatus(status cachenode.Status) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, s := range m.states {
		if s.CurrentStatus == status {
			out = append(out, id)
		}
	}
	return out
}
