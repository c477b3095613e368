package hashfanout

import (
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Murmur3 is the default Hasher, realizing spec.md §4.2's "e.g., a
// 64-bit-output MurmurHash/xxHash-class function". murmur3's seed
// parameter is 32 bits; the two 32-bit halves of the 64-bit seed are
// folded together so the full seed space is exercised.
type Murmur3 struct{}

func (Murmur3) Hash(key []byte, seed uint64) uint64 {
	return murmur3.Sum64WithSeed(key, uint32(seed)^uint32(seed>>32))
}

// XXH3 is an alternate Hasher backed by xxHash3. Swapping the Hasher
// implementation changes every key's fanout indices without touching
// the on-disk layout, demonstrating that hash-primitive identity is
// part of the format even though the header doesn't record it.
type XXH3 struct{}

func (XXH3) Hash(key []byte, seed uint64) uint64 {
	return xxh3.HashSeed(key, seed)
}
