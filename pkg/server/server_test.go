package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecluster/pkg/cachelog"
	"cachecluster/pkg/cachemanager"
	"cachecluster/pkg/config"
	"cachecluster/pkg/engine"
	"cachecluster/pkg/health"
	"cachecluster/pkg/metrics"
	"cachecluster/pkg/ring"
)

func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Server.Port = 0

	logger := cachelog.NewBasicLogger(cachelog.ErrorLevel)

	r := ring.New()
	m := cachemanager.New(r, cachemanager.Config{ReplicationFactor: 1}, logger)
	m.AddNode("node-1", engine.New(engine.Options{MaxSize: 100, Logger: logger}))

	discovery := health.NewStaticDiscovery()
	discovery.Register(health.DiscoveredNode{NodeID: "node-1", Host: "127.0.0.1", Port: 7001})

	monitor := health.NewMonitor(discovery, nil, health.Config{CheckInterval: time.Hour}, logger)

	metricsRegistry := metrics.NewRegistry()

	srv, err := NewServer(context.Background(), cfg, logger, m, monitor, discovery, metricsRegistry)
	require.NoError(t, err)
	return srv
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestHandlePing(t *testing.T) {
	s := createTestServer(t)

	req := httptest.NewRequest("GET", "/health/ping", nil)
	w := httptest.NewRecorder()
	s.handlePing(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleListNodes(t *testing.T) {
	s := createTestServer(t)

	req := httptest.NewRequest("GET", "/health/nodes", nil)
	w := httptest.NewRecorder()
	s.handleListNodes(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var nodes []NodeHealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-1", nodes[0].NodeID)
	assert.Equal(t, "127.0.0.1", nodes[0].Host)
	assert.Equal(t, 7001, nodes[0].Port)
}

func TestHandleGetNodeNotFound(t *testing.T) {
	s := createTestServer(t)

	req := withVars(httptest.NewRequest("GET", "/health/nodes/missing", nil), map[string]string{"id": "missing"})
	w := httptest.NewRecorder()
	s.handleGetNode(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCheckNode(t *testing.T) {
	s := createTestServer(t)

	req := withVars(httptest.NewRequest("POST", "/health/nodes/node-1/check", nil), map[string]string{"id": "node-1"})
	w := httptest.NewRecorder()
	s.handleCheckNode(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp NodeHealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "node-1", resp.NodeID)
	assert.Equal(t, "UNREACHABLE", resp.Status)
}

func TestHandleCheckNodeNotFound(t *testing.T) {
	s := createTestServer(t)

	req := withVars(httptest.NewRequest("POST", "/health/nodes/missing/check", nil), map[string]string{"id": "missing"})
	w := httptest.NewRecorder()
	s.handleCheckNode(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealthySummary(t *testing.T) {
	s := createTestServer(t)

	req := httptest.NewRequest("GET", "/health/summary", nil)
	w := httptest.NewRecorder()
	s.handleHealthSummary(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var summary HealthSummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalNodes)
}

func TestHandleClusterStats(t *testing.T) {
	s := createTestServer(t)

	req := httptest.NewRequest("GET", "/cluster/stats", nil)
	w := httptest.NewRecorder()
	s.handleClusterStats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var stats cachemanager.ClusterStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats.PerNode, "node-1")
}

func TestHandleShutdownCancelsContext(t *testing.T) {
	s := createTestServer(t)

	req := httptest.NewRequest("POST", "/health/shutdown", nil)
	w := httptest.NewRecorder()
	s.handleShutdown(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected server context to be cancelled")
	}
}
