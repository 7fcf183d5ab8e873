package qmap

import (
	"github.com/spaolacci/murmur3"
)

// Hasher maps a key to a full-width 32-bit hash. The table folds the
// result down to its bucket index.
type Hasher func(key string) uint32

const (
	fnvOffset32 = 0x811c9dc5
	fnvPrime32  = 0x01000193
)

// FNV1aHasher is the default key hash: 32-bit FNV-1a over the raw key
// bytes.
func FNV1aHasher(key string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return h
}

// Murmur3Hasher is an alternative key hash with stronger avalanche
// behavior on short keys.
func Murmur3Hasher(key string) uint32 {
	return murmur3.Sum32([]byte(key))
}

// foldHash compresses a 32-bit hash into order bits. XOR-ing the high
// bits back in spreads their entropy into the truncated index space
// better than a plain mask.
func foldHash(h, order uint32) uint32 {
	return ((h >> order) ^ h) & ((1 << order) - 1)
}
