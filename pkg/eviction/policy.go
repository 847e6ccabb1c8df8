// Package eviction implements the victim-selection policies a local cache
// engine uses when it must make room for a newly inserted key. A policy
// tracks only keys, not values — the engine owns the value storage and
// calls OnAccess/OnInsert/OnRemove to keep a policy's internal key set in
// sync with its own.
package eviction

// Policy selects which key to evict when a cache engine is at capacity.
// Implementations must be safe to call only under the engine's own write
// lock; they do not lock internally.
type Policy interface {
	// OnAccess records that key was read (a cache hit).
	OnAccess(key string)
	// OnInsert records that key was newly inserted.
	OnInsert(key string)
	// OnRemove forgets key, whether removed by Delete, expiry or eviction.
	OnRemove(key string)
	// SelectVictim returns the key to evict, or false if the policy tracks
	// no keys.
	SelectVictim() (string, bool)
}

// Kind names one of the fixed set of eviction policies a cache engine may
// be constructed with.
type Kind string

const (
	LRU    Kind = "lru"
	LFU    Kind = "lfu"
	Random Kind = "random"
)

// New constructs a Policy for the given kind, defaulting to LRU for an
// unrecognized or empty kind.
func New(kind Kind) Policy {
	switch kind {
	case LFU:
		return NewLFUPolicy()
	case Random:
		return NewRandomPolicy()
	case LRU, "":
		return NewLRUPolicy()
	default:
		return NewLRUPolicy()
	}
}
