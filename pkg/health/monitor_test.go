package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecluster/pkg/cachenode"
)

func newTestMonitor(t *testing.T, discovery ServiceDiscovery, pinger Pinger) *Monitor {
	t.Helper()
	m := NewMonitor(discovery, pinger, Config{
		CheckInterval:  time.Hour,
		DialTimeout:    100 * time.Millisecond,
		GlobalDeadline: time.Second,
	}, nil)
	t.Cleanup(m.pool.Stop)
	return m
}

func listenOnLoopback(t *testing.T) (host string, port int, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return "127.0.0.1", addr.Port, func() { ln.Close() }
}

func TestCheckNodeHealthyWhenReachable(t *testing.T) {
	host, port, closeFn := listenOnLoopback(t)
	defer closeFn()

	discovery := NewStaticDiscovery()
	node := DiscoveredNode{NodeID: "node-1", Host: host, Port: port}
	discovery.Register(node)

	m := newTestMonitor(t, discovery, nil)
	state := m.CheckNode(context.Background(), node.NodeID)

	assert.Equal(t, cachenode.StatusHealthy, state.CurrentStatus)
	assert.Equal(t, "ok", state.LastResult)
}

func TestCheckNodeUnreachableWhenNoListener(t *testing.T) {
	discovery := NewStaticDiscovery()
	node := DiscoveredNode{NodeID: "node-1", Host: "127.0.0.1", Port: 1} // reserved, nothing listens
	discovery.Register(node)

	m := newTestMonitor(t, discovery, nil)
	state := m.CheckNode(context.Background(), node.NodeID)

	assert.Equal(t, cachenode.StatusUnreachable, state.CurrentStatus)
	assert.Equal(t, 1, state.FailureCount)
}

func TestCheckNodeNotFoundWhenUnknownToDiscovery(t *testing.T) {
	m := newTestMonitor(t, NewStaticDiscovery(), nil)
	state := m.CheckNode(context.Background(), "ghost")

	assert.Equal(t, cachenode.StatusNotFound, state.CurrentStatus)
}

func TestCheckNodeDegradedWhenPingerFails(t *testing.T) {
	host, port, closeFn := listenOnLoopback(t)
	defer closeFn()

	discovery := NewStaticDiscovery()
	node := DiscoveredNode{NodeID: "node-1", Host: host, Port: port}
	discovery.Register(node)

	pinger := pingerFunc(func(ctx context.Context, nodeID string) error {
		return errors.New("cache unavailable")
	})

	m := newTestMonitor(t, discovery, pinger)
	state := m.CheckNode(context.Background(), node.NodeID)

	assert.Equal(t, cachenode.StatusDegraded, state.CurrentStatus)
}

func TestPerformDefensiveCheckCoversAllNodes(t *testing.T) {
	host, port, closeFn := listenOnLoopback(t)
	defer closeFn()

	discovery := NewStaticDiscovery()
	discovery.Register(DiscoveredNode{NodeID: "node-1", Host: host, Port: port})
	discovery.Register(DiscoveredNode{NodeID: "node-2", Host: "127.0.0.1", Port: 1})

	m := newTestMonitor(t, discovery, nil)
	require.NoError(t, m.PerformDefensiveCheck(context.Background()))

	healthy := m.HealthyNodes()
	unhealthy := m.UnhealthyNodes()
	assert.Contains(t, healthy, "node-1")
	assert.Contains(t, unhealthy, "node-2")
}

func TestOnTransitionFiresOnStatusChange(t *testing.T) {
	host, port, closeFn := listenOnLoopback(t)
	defer closeFn()

	discovery := NewStaticDiscovery()
	node := DiscoveredNode{NodeID: "node-1", Host: host, Port: port}
	discovery.Register(node)

	m := newTestMonitor(t, discovery, nil)

	eventCh := make(chan TransitionEvent, 1)
	m.OnTransition(func(e TransitionEvent) { eventCh <- e })

	m.CheckNode(context.Background(), node.NodeID)

	select {
	case e := <-eventCh:
		assert.Equal(t, "node-1", e.NodeID)
		assert.Equal(t, cachenode.StatusHealthy, e.Current)
	case <-time.After(time.Second):
		t.Fatal("transition callback never fired")
	}
}

func TestStateUnknownNodeReturnsFalse(t *testing.T) {
	m := newTestMonitor(t, NewStaticDiscovery(), nil)
	_, ok := m.State("nonexistent")
	assert.False(t, ok)
}

func TestStartAndStopScheduleSweeps(t *testing.T) {
	host, port, closeFn := listenOnLoopback(t)
	defer closeFn()

	discovery := NewStaticDiscovery()
	discovery.Register(DiscoveredNode{NodeID: "node-1", Host: host, Port: port})

	m := NewMonitor(discovery, nil, Config{CheckInterval: 20 * time.Millisecond, DialTimeout: 100 * time.Millisecond}, nil)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Eventually(t, func() bool {
		_, ok := m.State("node-1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

type pingerFunc func(ctx context.Context, nodeID string) error

func (f pingerFunc) Ping(ctx context.Context, nodeID string) error { return f(ctx, nodeID) }
