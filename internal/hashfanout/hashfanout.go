// Package hashfanout derives the k window offsets a B-field operation
// probes for a key, via Kirsch-Mitzenmacher double hashing over a
// pluggable 64-bit Hasher.
package hashfanout

// Hasher is a pluggable, non-cryptographic 64-bit hash primitive.
// Changing the Hasher implementation — or its seeds — invalidates
// existing .bfd files: the header does not record which Hasher produced
// a file, so compatibility is tracked externally by library version.
type Hasher interface {
	Hash(key []byte, seed uint64) uint64
}

// Indices derives k window start offsets in [0, l-nu+1) from key, using
// double hashing idx_i = (h_a + i*h_b) mod (l-nu+1) to combine two
// seeded hashes in place of k independent ones. dst is reused if it has
// enough capacity; pass nil to always allocate.
func Indices(h Hasher, key []byte, s1, s2 uint64, l uint64, nu, k uint8, dst []uint64) []uint64 {
	span := l - uint64(nu) + 1
	ha := h.Hash(key, s1)
	hb := h.Hash(key, s2)

	if cap(dst) < int(k) {
		dst = make([]uint64, k)
	}
	dst = dst[:k]
	for i := uint64(0); i < uint64(k); i++ {
		raw := ha + i*hb // wraps on uint64 overflow, matching the spec's wrapping add/mul
		dst[i] = raw % span
	}
	return dst
}
