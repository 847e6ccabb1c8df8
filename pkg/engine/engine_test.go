package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecluster/pkg/cacheentry"
	"cachecluster/pkg/eviction"
)

func newTestEngine(maxSize int) *Engine {
	return New(Options{MaxSize: maxSize, SweepInterval: -1})
}

func TestSetAndGet(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	ok := e.Set("key", []byte("value"), 0, cacheentry.String)
	require.True(t, ok)

	v, found := e.Get("key")
	assert.True(t, found)
	assert.Equal(t, "value", string(v))
}

func TestGetMissing(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	v, found := e.Get("absent")
	assert.False(t, found)
	assert.Nil(t, v)
	assert.Equal(t, int64(1), e.Stats().Misses)
}

func TestMaxSizeZeroAlwaysMisses(t *testing.T) {
	e := newTestEngine(0)
	defer e.Shutdown()

	ok := e.Set("key", []byte("value"), 0, cacheentry.String)
	assert.False(t, ok)

	_, found := e.Get("key")
	assert.False(t, found)
}

func TestTTLExpiry(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	e.Set("key", []byte("value"), 10*time.Millisecond, cacheentry.String)
	time.Sleep(20 * time.Millisecond)

	_, found := e.Get("key")
	assert.False(t, found)
	assert.Equal(t, int64(0), e.Stats().Size)
}

func TestDeleteIsIdempotent(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	e.Set("key", []byte("value"), 0, cacheentry.String)
	assert.True(t, e.Delete("key"))
	assert.False(t, e.Delete("key"))
}

func TestExistsDoesNotTouch(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	e.Set("key", []byte("value"), 0, cacheentry.String)
	assert.True(t, e.Exists("key"))
	assert.False(t, e.Exists("other"))
	assert.Equal(t, int64(0), e.Stats().Hits)
}

func TestExpireUpdatesTTL(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	e.Set("key", []byte("value"), time.Hour, cacheentry.String)
	assert.True(t, e.Expire("key", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, found := e.Get("key")
	assert.False(t, found)

	assert.False(t, e.Expire("missing", time.Second))
}

func TestTTLReporting(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	e.Set("noTTL", []byte("v"), 0, cacheentry.String)
	assert.Equal(t, int64(-1), e.TTL("noTTL"))

	e.Set("withTTL", []byte("v"), time.Minute, cacheentry.String)
	assert.Greater(t, e.TTL("withTTL"), int64(0))

	assert.Equal(t, int64(-2), e.TTL("absent"))
}

func TestFlushRemovesEverything(t *testing.T) {
	e := newTestEngine(10)
	defer e.Shutdown()

	e.Set("a", []byte("1"), 0, cacheentry.String)
	e.Set("b", []byte("2"), 0, cacheentry.String)
	e.Flush()

	assert.Equal(t, int64(0), e.Stats().Size)
	_, found := e.Get("a")
	assert.False(t, found)
}

func TestEvictionOnCapacity(t *testing.T) {
	e := New(Options{MaxSize: 2, Policy: eviction.LRU, SweepInterval: -1})
	defer e.Shutdown()

	e.Set("a", []byte("1"), 0, cacheentry.String)
	e.Set("b", []byte("2"), 0, cacheentry.String)
	e.Set("c", []byte("3"), 0, cacheentry.String)

	assert.Equal(t, int64(2), e.Stats().Size)
	assert.Equal(t, int64(1), e.Stats().Evictions)

	_, found := e.Get("a")
	assert.False(t, found)
}

func TestBackgroundSweepRemovesExpiredKeys(t *testing.T) {
	e := New(Options{MaxSize: 10, SweepInterval: 5 * time.Millisecond})
	defer e.Shutdown()

	e.Set("key", []byte("value"), time.Millisecond, cacheentry.String)
	time.Sleep(30 * time.Millisecond)

	e.mu.RLock()
	_, present := e.data["key"]
	e.mu.RUnlock()
	assert.False(t, present)
}

func TestShutdownIsIdempotent(t *testing.T) {
	e := newTestEngine(10)
	e.Shutdown()
	e.Shutdown()
}
