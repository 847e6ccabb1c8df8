package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecluster/pkg/cacheentry"
	"cachecluster/pkg/engine"
	"cachecluster/pkg/ring"
)

func newTestManager(t *testing.T, replicationFactor int, nodeIDs ...string) *Manager {
	t.Helper()
	r := ring.New(ring.WithVirtualNodes(50))
	m := New(r, Config{ReplicationFactor: replicationFactor}, nil)
	for _, id := range nodeIDs {
		e := engine.New(engine.Options{MaxSize: 1000, SweepInterval: -1})
		t.Cleanup(e.Shutdown)
		m.AddNode(id, e)
	}
	return m
}

func TestSetAndGetRoundTrip(t *testing.T) {
	m := newTestManager(t, 1, "node-1")

	ok := m.Set(context.Background(), "key", []byte("value"), 0, cacheentry.String)
	require.True(t, ok)

	v, found := m.Get(context.Background(), "key")
	assert.True(t, found)
	assert.Equal(t, "value", string(v))
}

func TestGetOnEmptyClusterMisses(t *testing.T) {
	m := newTestManager(t, 1)

	_, found := m.Get(context.Background(), "key")
	assert.False(t, found)

	ok := m.Set(context.Background(), "key", []byte("v"), 0, cacheentry.String)
	assert.False(t, ok)
}

func TestReplicationFactorExceedsNodeCount(t *testing.T) {
	m := newTestManager(t, 5, "node-1", "node-2")

	replicas := m.ReplicationNodes("key")
	assert.Len(t, replicas, 2)

	ok := m.Set(context.Background(), "key", []byte("v"), 0, cacheentry.String)
	assert.True(t, ok)
}

func TestDeleteAndExists(t *testing.T) {
	m := newTestManager(t, 2, "node-1", "node-2", "node-3")

	m.Set(context.Background(), "key", []byte("v"), 0, cacheentry.String)
	assert.True(t, m.Exists(context.Background(), "key"))

	assert.True(t, m.Delete(context.Background(), "key"))
	assert.False(t, m.Delete(context.Background(), "key"))
}

func TestExpireAndTTL(t *testing.T) {
	m := newTestManager(t, 1, "node-1")

	m.Set(context.Background(), "key", []byte("v"), time.Hour, cacheentry.String)
	assert.True(t, m.Expire(context.Background(), "key", time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int64(-2), m.TTL("key"))
}

func TestFlushClearsAllNodes(t *testing.T) {
	m := newTestManager(t, 1, "node-1", "node-2")

	for i := 0; i < 20; i++ {
		m.Set(context.Background(), string(rune('a'+i)), []byte("v"), 0, cacheentry.String)
	}

	m.Flush(context.Background())

	stats := m.ClusterStats()
	for _, s := range stats.PerNode {
		assert.Equal(t, int64(0), s.Size)
	}
}

func TestAddNodeAndRemoveNode(t *testing.T) {
	m := newTestManager(t, 1)
	e := engine.New(engine.Options{MaxSize: 10, SweepInterval: -1})
	defer e.Shutdown()

	m.AddNode("node-1", e)
	assert.Contains(t, m.NodeIDs(), "node-1")

	m.RemoveNode("node-1")
	assert.NotContains(t, m.NodeIDs(), "node-1")
}

func TestClusterStatsAggregatesDistribution(t *testing.T) {
	m := newTestManager(t, 1, "node-1", "node-2")

	stats := m.ClusterStats()
	assert.Len(t, stats.PerNode, 2)
	assert.Greater(t, stats.Distribution.Max, 0)
	assert.Equal(t, stats.Distribution.Min, stats.Distribution.Max)
}
