package bfield

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/bfieldstore/bfield/internal/hashfanout"
)

// Option configures the ambient, non-required knobs of Create and Load:
// seed source, Hasher choice, and other_params bytes — the same
// With*-named functional-options shape as the teacher's
// builder_options.go BuildOption. Load uses only the Hasher choice; the
// seeds and other_params of a loaded cascade are read from its headers.
type Option func(*config)

type config struct {
	seedFn      func(level int) (s1, s2 uint64)
	hasher      hashfanout.Hasher
	otherParams []byte
}

func defaultConfig() *config {
	return &config{
		seedFn: randomSeeds,
		hasher: hashfanout.Murmur3{},
	}
}

// WithSeeds overrides the per-level seed source. Create draws seeds from
// crypto/rand by default (spec.md is silent on seed generation); tests
// inject a deterministic sequence here to make spec.md §8 property 5
// ("identical parameters, seeds... byte-identical") directly testable.
func WithSeeds(fn func(level int) (s1, s2 uint64)) Option {
	return func(c *config) { c.seedFn = fn }
}

// WithHasher overrides the default Hasher (Murmur3) used by the hash
// fanout. Per spec.md §9, changing the Hasher invalidates existing
// files — the header does not record which Hasher produced them.
func WithHasher(h hashfanout.Hasher) Option {
	return func(c *config) { c.hasher = h }
}

// WithOtherParams attaches opaque caller metadata, persisted verbatim in
// every array's header and returned unmodified by Info(). The slice is
// copied, so the caller may reuse it after this call.
func WithOtherParams(data []byte) Option {
	return func(c *config) { c.otherParams = append([]byte(nil), data...) }
}

func randomSeeds(int) (uint64, uint64) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("bfield: crypto/rand unavailable: " + err.Error())
	}
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16])
}
