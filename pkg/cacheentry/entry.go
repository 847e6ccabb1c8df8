// Package cacheentry defines the value stored per key in a local cache
// engine: the payload, its type tag, and its expiry/access metadata.
package cacheentry

import (
	"sync/atomic"
	"time"
)

// DataType tags the shape of an entry's payload. The cache stores opaque
// bytes; the tag travels with the value so callers can interpret it without
// the engine needing to understand any particular encoding.
type DataType int

const (
	String DataType = iota
	List
	Set
	Hash
	SortedSet
)

func (t DataType) String() string {
	switch t {
	case List:
		return "LIST"
	case Set:
		return "SET"
	case Hash:
		return "HASH"
	case SortedSet:
		return "SORTED_SET"
	default:
		return "STRING"
	}
}

// Entry is one stored key's value and metadata. LastAccessed/AccessCount
// are updated on every Touch, which Get calls; CreatedAt is fixed at
// construction, and ExpiresAt starts at zero and changes only through
// SetTTL. A zero ExpiresAt means no TTL.
type Entry struct {
	Value        []byte
	DataType     DataType
	CreatedAt    time.Time
	ExpiresAt    time.Time
	lastAccessed atomic.Int64 // unix nanoseconds
	accessCount  atomic.Int64
}

// New creates an Entry with no expiry. Use SetTTL to add one.
func New(value []byte, dataType DataType) *Entry {
	now := time.Now()
	e := &Entry{Value: value, DataType: dataType, CreatedAt: now}
	e.lastAccessed.Store(now.UnixNano())
	return e
}

// SetTTL sets ExpiresAt to now+ttl. A non-positive ttl clears any expiry.
func (e *Entry) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		e.ExpiresAt = time.Time{}
		return
	}
	e.ExpiresAt = time.Now().Add(ttl)
}

// Expired reports whether the entry's TTL, if any, has elapsed as of now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
}

// TTLRemaining returns the remaining seconds until expiry: -1 if the entry
// has no TTL, or the non-negative remaining seconds otherwise (0 if it has
// just expired but has not yet been reaped).
func (e *Entry) TTLRemaining(now time.Time) int64 {
	if e.ExpiresAt.IsZero() {
		return -1
	}
	remaining := e.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

// Touch records an access: bumps LastAccessed to now and increments
// AccessCount. Called on every Get.
func (e *Entry) Touch() {
	e.lastAccessed.Store(time.Now().UnixNano())
	e.accessCount.Add(1)
}

// LastAccessed returns the time of the most recent Touch.
func (e *Entry) LastAccessed() time.Time {
	return time.Unix(0, e.lastAccessed.Load())
}

// AccessCount returns the number of times Touch has been called.
func (e *Entry) AccessCount() int64 {
	return e.accessCount.Load()
}
