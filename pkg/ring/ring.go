// Package ring implements the consistent-hash ring: virtual-node placement
// of cluster nodes and lookup of the node (or ordered replica set)
// responsible for a key, with a selectable hash function and
// distribution stats for observability.
package ring

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"cachecluster/pkg/cachehash"
)

const defaultVirtualNodes = 150

// Ring is a single-writer, multi-reader consistent-hash ring.
type Ring struct {
	mu          sync.RWMutex
	circle      map[uint64]string // hash -> physical node id
	sortedKeys  []uint64
	nodeVnodes  map[string]int // physical node id -> virtual node count
	virtualNode int
	hashFn      cachehash.Func
}

// Option configures a new Ring.
type Option func(*Ring)

// WithVirtualNodes sets the number of virtual nodes per physical node
// (default 150).
func WithVirtualNodes(n int) Option {
	return func(r *Ring) {
		if n > 0 {
			r.virtualNode = n
		}
	}
}

// WithHashFunc sets the ring's hash function (default FNV-1a). Calling
// this after nodes have been added is a programming error: the ring
// invariant requires the same function across all adds/removes/lookups.
func WithHashFunc(fn cachehash.Func) Option {
	return func(r *Ring) {
		if fn != nil {
			r.hashFn = fn
		}
	}
}

// New creates an empty Ring.
func New(opts ...Option) *Ring {
	r := &Ring{
		circle:      make(map[uint64]string),
		nodeVnodes:  make(map[string]int),
		virtualNode: defaultVirtualNodes,
		hashFn:      cachehash.FNV1aHash,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddNode inserts the virtual entries for nodeID. Re-adding an existing
// node id is a no-op.
func (r *Ring) AddNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodeVnodes[nodeID]; exists {
		return
	}

	for i := 0; i < r.virtualNode; i++ {
		h := r.hashFn(vnodeKey(nodeID, i))
		r.circle[h] = nodeID
	}
	r.nodeVnodes[nodeID] = r.virtualNode
	r.rebuildSortedKeys()
}

// RemoveNode deletes all of nodeID's virtual entries.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodeVnodes[nodeID]; !exists {
		return
	}
	for i := 0; i < r.virtualNode; i++ {
		h := r.hashFn(vnodeKey(nodeID, i))
		delete(r.circle, h)
	}
	delete(r.nodeVnodes, nodeID)
	r.rebuildSortedKeys()
}

// rebuildSortedKeys must be called with r.mu held for writing. It builds
// the new sorted-keys slice off to the side so readers using the
// previously-published slice never observe a half-updated ring.
func (r *Ring) rebuildSortedKeys() {
	keys := make([]uint64, 0, len(r.circle))
	for k := range r.circle {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	r.sortedKeys = keys
}

// GetNode returns the physical node responsible for key: the first node
// whose position is >= hash(key), wrapping to the lowest position if none
// is found. ok is false only when the ring has no nodes.
func (r *Ring) GetNode(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sortedKeys) == 0 {
		return "", false
	}
	h := r.hashFn(key)
	idx := sort.Search(len(r.sortedKeys), func(i int) bool { return r.sortedKeys[i] >= h })
	if idx == len(r.sortedKeys) {
		idx = 0
	}
	return r.circle[r.sortedKeys[idx]], true
}

// GetNodes returns up to count distinct physical nodes walking clockwise
// from hash(key), in replica-primacy order (first = primary). If count
// exceeds the number of distinct nodes, all distinct nodes are returned.
func (r *Ring) GetNodes(key string, count int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if count <= 0 || len(r.sortedKeys) == 0 {
		return nil
	}

	h := r.hashFn(key)
	start := sort.Search(len(r.sortedKeys), func(i int) bool { return r.sortedKeys[i] >= h })

	seen := make(map[string]struct{}, count)
	result := make([]string, 0, count)

	for i := 0; i < len(r.sortedKeys) && len(result) < count; i++ {
		idx := (start + i) % len(r.sortedKeys)
		nodeID := r.circle[r.sortedKeys[idx]]
		if _, ok := seen[nodeID]; ok {
			continue
		}
		seen[nodeID] = struct{}{}
		result = append(result, nodeID)
	}
	return result
}

// DistributionStats reports min/max/avg/stdDev of virtual-node counts per
// physical node.
type DistributionStats struct {
	Min    int
	Max    int
	Avg    float64
	StdDev float64
}

// DistributionStats computes distribution stats over the current node set.
func (r *Ring) DistributionStats() DistributionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodeVnodes) == 0 {
		return DistributionStats{}
	}

	counts := make([]int, 0, len(r.nodeVnodes))
	for _, vnodes := range r.nodeVnodes {
		counts = append(counts, vnodes)
	}

	min, max, sum := counts[0], counts[0], 0
	for _, c := range counts {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
		sum += c
	}
	avg := float64(sum) / float64(len(counts))

	var variance float64
	for _, c := range counts {
		d := float64(c) - avg
		variance += d * d
	}
	variance /= float64(len(counts))

	return DistributionStats{Min: min, Max: max, Avg: avg, StdDev: math.Sqrt(variance)}
}

// NodeCount returns the number of distinct physical nodes in the ring.
func (r *Ring) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodeVnodes)
}

func vnodeKey(nodeID string, i int) string {
	return nodeID + "-" + strconv.Itoa(i)
}
