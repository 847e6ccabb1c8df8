// Package metrics wraps a Prometheus registry with the cache cluster's own
// measurements: local engine throughput, ring balance, lock contention,
// health transitions, and the admin HTTP surface itself.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a Prometheus registry with the cluster's application
// metrics.
type Registry struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Local engine metrics
	engineOpsTotal   *prometheus.CounterVec
	engineHitsTotal  prometheus.Counter
	engineMissTotal  prometheus.Counter
	engineEvictTotal *prometheus.CounterVec
	engineKeysGauge  *prometheus.GaugeVec

	// Ring metrics
	ringNodeCount prometheus.Gauge
	ringStdDevPct prometheus.Gauge

	// Lock registry metrics
	lockAcquiresTotal    prometheus.Counter
	lockConflictsTotal   prometheus.Counter
	lockTimeoutsTotal    prometheus.Counter
	lockExpirationsTotal prometheus.Counter
	lockWaitersGauge     prometheus.Gauge

	// Health monitor metrics
	healthTransitionsTotal *prometheus.CounterVec
	healthSweepDuration    prometheus.Histogram
	healthyNodesGauge      prometheus.Gauge

	// Process metrics
	panicTotal        *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec
}

// NewRegistry creates a Registry with every cluster metric registered
// against a fresh Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecluster_http_requests_total",
				Help: "Total number of HTTP requests handled by the admin server",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cachecluster_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecluster_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		engineOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecluster_engine_operations_total",
				Help: "Total local engine operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		engineHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecluster_engine_hits_total",
				Help: "Total local cache hits",
			},
		),
		engineMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecluster_engine_misses_total",
				Help: "Total local cache misses",
			},
		),
		engineEvictTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecluster_engine_evictions_total",
				Help: "Total evictions by policy",
			},
			[]string{"policy"},
		),
		engineKeysGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cachecluster_engine_keys",
				Help: "Number of keys currently held by a node's local engine",
			},
			[]string{"node"},
		),

		ringNodeCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecluster_ring_node_count",
				Help: "Number of physical nodes on the hash ring",
			},
		),
		ringStdDevPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecluster_ring_distribution_stddev_pct",
				Help: "Standard deviation of vnode ownership across physical nodes, as a percent of the mean",
			},
		),

		lockAcquiresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecluster_lock_acquires_total",
				Help: "Total locks granted",
			},
		),
		lockConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecluster_lock_conflicts_total",
				Help: "Total TryAcquire calls that found an incompatible holder",
			},
		),
		lockTimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecluster_lock_timeouts_total",
				Help: "Total Acquire calls that gave up waiting",
			},
		),
		lockExpirationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cachecluster_lock_expirations_total",
				Help: "Total locks reclaimed by the TTL sweeper",
			},
		),
		lockWaitersGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecluster_lock_waiters",
				Help: "Total callers currently queued across all keys",
			},
		),

		healthTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecluster_health_transitions_total",
				Help: "Total node health status transitions observed",
			},
			[]string{"from", "to"},
		),
		healthSweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cachecluster_health_sweep_duration_seconds",
				Help:    "Duration of a full defensive health sweep",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		healthyNodesGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachecluster_healthy_nodes",
				Help: "Number of nodes currently classified HEALTHY",
			},
		),

		panicTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecluster_panics_total",
				Help: "Total number of recovered panics",
			},
			[]string{"component"},
		),
		authFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachecluster_auth_failures_total",
				Help: "Total number of authentication failures",
			},
			[]string{"type"},
		),
	}

	r.registerMetrics()
	return r
}

func (r *Registry) registerMetrics() {
	collectors := []prometheus.Collector{
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.httpRequestsInFlight,
		r.engineOpsTotal,
		r.engineHitsTotal,
		r.engineMissTotal,
		r.engineEvictTotal,
		r.engineKeysGauge,
		r.ringNodeCount,
		r.ringStdDevPct,
		r.lockAcquiresTotal,
		r.lockConflictsTotal,
		r.lockTimeoutsTotal,
		r.lockExpirationsTotal,
		r.lockWaitersGauge,
		r.healthTransitionsTotal,
		r.healthSweepDuration,
		r.healthyNodesGauge,
		r.panicTotal,
		r.authFailuresTotal,
	}
	for _, c := range collectors {
		r.registry.MustRegister(c)
	}
}

// GetRegistry returns the underlying Prometheus registry, for mounting
// behind promhttp.HandlerFor.
func (r *Registry) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordHTTPRequest records one completed HTTP request.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func (r *Registry) IncHTTPRequestsInFlight() { r.httpRequestsInFlight.Inc() }
func (r *Registry) DecHTTPRequestsInFlight() { r.httpRequestsInFlight.Dec() }

// RecordEngineOp records a local engine operation outcome ("hit"/"miss"/
// "ok"/"evicted", depending on op).
func (r *Registry) RecordEngineOp(op, outcome string) {
	r.engineOpsTotal.WithLabelValues(op, outcome).Inc()
	switch outcome {
	case "hit":
		r.engineHitsTotal.Inc()
	case "miss":
		r.engineMissTotal.Inc()
	}
}

// RecordEviction records one key evicted under the named policy.
func (r *Registry) RecordEviction(policy string) {
	r.engineEvictTotal.WithLabelValues(policy).Inc()
}

// SetEngineKeys reports a node's current key count.
func (r *Registry) SetEngineKeys(node string, count int) {
	r.engineKeysGauge.WithLabelValues(node).Set(float64(count))
}

// SetRingStats reports the ring's current node count and vnode balance.
func (r *Registry) SetRingStats(nodeCount int, stdDevPct float64) {
	r.ringNodeCount.Set(float64(nodeCount))
	r.ringStdDevPct.Set(stdDevPct)
}

func (r *Registry) RecordLockAcquire()    { r.lockAcquiresTotal.Inc() }
func (r *Registry) RecordLockConflict()   { r.lockConflictsTotal.Inc() }
func (r *Registry) RecordLockTimeout()    { r.lockTimeoutsTotal.Inc() }
func (r *Registry) RecordLockExpiration() { r.lockExpirationsTotal.Inc() }

// SetLockWaiters reports the current total queued-waiter count.
func (r *Registry) SetLockWaiters(count int) {
	r.lockWaitersGauge.Set(float64(count))
}

// RecordHealthTransition records one node status transition.
func (r *Registry) RecordHealthTransition(from, to string) {
	r.healthTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveHealthSweep records how long one defensive sweep took.
func (r *Registry) ObserveHealthSweep(duration time.Duration) {
	r.healthSweepDuration.Observe(duration.Seconds())
}

// SetHealthyNodes reports the current healthy-node count.
func (r *Registry) SetHealthyNodes(count int) {
	r.healthyNodesGauge.Set(float64(count))
}

func (r *Registry) RecordPanic(component string) {
	r.panicTotal.WithLabelValues(component).Inc()
}

func (r *Registry) RecordAuthFailure(authType string) {
	r.authFailuresTotal.WithLabelValues(authType).Inc()
}
