// Package cachehash provides the key-to-integer hash functions the ring
// uses to place nodes and keys on its circle.
//
// Three functions are offered: an MD5-derived hash and FNV-1a, the two the
// cluster's wire protocol names directly, plus xxhash as a third, faster
// option. A ring must use exactly one function consistently across
// AddNode/RemoveNode/GetNode calls; mixing them would scatter keys that
// should land on the same node.
package cachehash

import (
	"crypto/md5"
	"hash/fnv"

	"github.com/cespare/xxhash/v2"
)

// Func maps a key to a 64-bit hash used for ring placement.
type Func func(key string) uint64

// Name identifies one of the selectable hash functions.
type Name string

const (
	MD5    Name = "md5"
	FNV1a  Name = "fnv1a"
	XXHash Name = "xxhash"
)

// MD5Hash takes the first 8 bytes of the MD5 digest and assembles them
// big-endian into a uint64.
func MD5Hash(key string) uint64 {
	sum := md5.Sum([]byte(key))
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(sum[i])
	}
	return v
}

// FNV1aHash computes the 64-bit FNV-1a hash of key.
func FNV1aHash(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// XXHash64 computes the xxhash64 of key.
func XXHash64(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Resolve returns the Func for a given Name, defaulting to FNV-1a for an
// unrecognized or empty name.
func Resolve(name Name) Func {
	switch name {
	case MD5:
		return MD5Hash
	case XXHash:
		return XXHash64
	case FNV1a, "":
		return FNV1aHash
	default:
		return FNV1aHash
	}
}
