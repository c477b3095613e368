// Package bfield implements the B-field: a probabilistic associative
// map from opaque byte-string keys to small non-negative integer
// values, storing neither keys nor values verbatim but a short
// fixed-weight bit pattern per key scattered into a cascade of shared
// bit arrays.
//
// # Basic usage
//
// Creating and filling a B-field requires the caller to drive the pass
// protocol explicitly (the core does not iterate the key set for you):
//
//	f, err := bfield.Create(dir, "myfield", size, k, nu, kappa, theta, beta, maxScaledown, nSecondaries, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//	for pass := 0; pass < int(f.Info().Params.NSecondaries)+1; pass++ {
//	    for _, kv := range dataset {
//	        if err := f.Insert(kv.Key, kv.Value, pass); err != nil {
//	            log.Fatal(err)
//	        }
//	    }
//	}
//	if err := f.Finalize(); err != nil {
//	    log.Fatal(err)
//	}
//
// Querying:
//
//	lookup, value, err := f.Get(key)
//	switch lookup {
//	case bfield.Found:
//	    fmt.Println(value)
//	case bfield.Indeterminate:
//	    fmt.Println("maybe present, couldn't resolve")
//	case bfield.Absent:
//	    fmt.Println("never inserted")
//	}
package bfield

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	bferrors "github.com/bfieldstore/bfield/errors"
	"github.com/bfieldstore/bfield/internal/combinatorial"
	"github.com/bfieldstore/bfield/internal/hashfanout"
)

// Lookup classifies the outcome of a BField.Get call.
type Lookup int

const (
	// Absent means the key was never inserted (definitive: an
	// inserted key's windows can never AND down below kappa bits).
	Absent Lookup = iota
	// Indeterminate means every cascade level probed returned a
	// popcount above kappa; the key may or may not have been
	// inserted.
	Indeterminate
	// Found means the key resolved to a value at some cascade level.
	Found
)

func (l Lookup) String() string {
	switch l {
	case Absent:
		return "Absent"
	case Indeterminate:
		return "Indeterminate"
	case Found:
		return "Found"
	default:
		return "Lookup(?)"
	}
}

// Params holds a BField's immutable parameters (spec.md §3).
type Params struct {
	Size               uint64
	NHashes            uint8
	MarkerWidth        uint8
	NMarkerBits        uint8
	MaxValue           uint64
	SecondaryScaledown float64
	MaxScaledown       float64
	NSecondaries       uint8
	OtherParams        []byte
}

// LevelInfo describes one array of the cascade.
type LevelInfo struct {
	Index     int
	Bits      uint64
	Finalized bool
}

// Info is the return type of BField.Info().
type Info struct {
	Params    Params
	Levels    []LevelInfo
	Finalized bool
}

// BField orchestrates the cascade of 1 primary + (a-1) secondary
// Arrays, routing inserts by pass index and composing lookups across
// levels (spec.md §4.5).
type BField struct {
	dir, base string
	params    Params
	arrays    []*Array
	codec     *combinatorial.Codec
	hasher    hashfanout.Hasher
	inMemory  bool
	finalized bool
	closed    bool
}

// levelSize implements the sizing law of spec.md §3: array i has bit
// length ceil(size * max(beta^i, maxScaledown^i)), rounded up to a
// whole machine word. A level is additionally floored at nu bits so the
// hash-fanout window bound (L-nu+1) never goes non-positive — spec.md's
// max_scaledown exists to prevent "degenerate tiny arrays", and this is
// the concrete floor that guarantees it.
func levelSize(size uint64, beta, maxScaledown float64, i int, nu uint8) uint64 {
	scale := math.Max(math.Pow(beta, float64(i)), math.Pow(maxScaledown, float64(i)))
	l := uint64(math.Ceil(float64(size) * scale))
	if l < uint64(nu) {
		l = uint64(nu)
	}
	return roundUpWord(l)
}

func roundUpWord(bitsLen uint64) uint64 {
	return ((bitsLen + 63) / 64) * 64
}

// Create instantiates a BField: Array[0] at size bits plus n_secondaries
// shrinking secondary arrays, per the sizing law, and returns a
// writable handle ready for the pass protocol (spec.md §3, §4.5).
func Create(dir, base string, size uint64, k, nu, kappa uint8, theta uint64, beta, maxScaledown float64, nSecondaries uint8, inMemory bool, opts ...Option) (*BField, error) {
	if nu == 0 || nu > 64 {
		return nil, bferrors.ErrInvalidMarkerWidth
	}
	if kappa == 0 || kappa > nu {
		return nil, bferrors.ErrInvalidMarkerBits
	}
	if k == 0 {
		return nil, bferrors.ErrInvalidHashCount
	}
	if size < uint64(nu) {
		return nil, bferrors.ErrSizeTooSmall
	}
	if beta <= 0 || beta >= 1 {
		return nil, bferrors.ErrInvalidScaledown
	}
	if maxScaledown <= 0 || maxScaledown >= 1 {
		return nil, bferrors.ErrInvalidMaxScaledown
	}
	if !inMemory && base == "" {
		return nil, bferrors.ErrEmptyBase
	}

	codec := combinatorial.NewCodec(nu, kappa)
	if theta > codec.Total() {
		return nil, bferrors.ErrMaxValueTooLarge
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	total := int(nSecondaries) + 1
	arrays := make([]*Array, 0, total)
	for i := 0; i < total; i++ {
		l := levelSize(size, beta, maxScaledown, i, nu)
		s1, s2 := cfg.seedFn(i)
		arr, err := createArray(dir, base, i, total, l, k, nu, kappa, s1, s2, theta, cfg.otherParams, inMemory, codec, cfg.hasher)
		if err != nil {
			for _, existing := range arrays {
				err = errors.Join(err, existing.Close())
			}
			return nil, err
		}
		arrays = append(arrays, arr)
	}

	return &BField{
		dir:  dir,
		base: base,
		params: Params{
			Size:               size,
			NHashes:            k,
			MarkerWidth:        nu,
			NMarkerBits:        kappa,
			MaxValue:           theta,
			SecondaryScaledown: beta,
			MaxScaledown:       maxScaledown,
			NSecondaries:       nSecondaries,
			OtherParams:        cfg.otherParams,
		},
		arrays:   arrays,
		codec:    codec,
		hasher:   cfg.hasher,
		inMemory: inMemory,
	}, nil
}

// Insert performs pass p's routing rule (spec.md §4.5): pass 0 always
// writes to Array[0]; pass p>0 evaluates Array[0..p-1] and writes to
// Array[p] only if every preceding level was Indeterminate for key.
func (f *BField) Insert(key []byte, value uint64, pass int) error {
	if f.closed {
		return bferrors.ErrClosed
	}
	if f.finalized {
		return bferrors.ErrFinalized
	}
	if pass < 0 || pass >= len(f.arrays) {
		return bferrors.ErrInvalidPass
	}
	if value >= f.params.MaxValue {
		return bferrors.ErrValueOutOfRange
	}

	for p := 0; p < pass; p++ {
		res, _, err := f.arrays[p].Lookup(key)
		if err != nil {
			return err
		}
		if res != Indeterminate {
			return nil
		}
	}
	return f.arrays[pass].Insert(key, value)
}

// Get walks the cascade level by level, returning as soon as a level
// resolves to Absent or Found, and Indeterminate if every level does
// (spec.md §4.5).
func (f *BField) Get(key []byte) (Lookup, uint64, error) {
	if f.closed {
		return Absent, 0, bferrors.ErrClosed
	}
	for _, a := range f.arrays {
		res, v, err := a.Lookup(key)
		if err != nil {
			return Absent, 0, err
		}
		switch res {
		case Absent:
			return Absent, 0, nil
		case Found:
			return Found, v, nil
		}
	}
	return Indeterminate, 0, nil
}

// Finalize flushes, checksums, and seals every array in the cascade in
// parallel, mirroring the teacher's errgroup-based worker fan-out
// (builder_parallel.go) applied here to independent per-array files
// rather than independent MPHF blocks. After Finalize, Insert returns
// ErrFinalized; Get remains usable.
func (f *BField) Finalize() error {
	if f.closed {
		return bferrors.ErrClosed
	}
	if f.finalized {
		return nil
	}
	var g errgroup.Group
	for _, a := range f.arrays {
		a := a
		g.Go(a.Finalize)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.finalized = true
	return nil
}

// Info reports the BField's parameters and the current size and status
// of each cascade level.
func (f *BField) Info() Info {
	levels := make([]LevelInfo, len(f.arrays))
	for i, a := range f.arrays {
		levels[i] = LevelInfo{Index: i, Bits: a.hdr.L, Finalized: a.finalized}
	}
	return Info{Params: f.params, Levels: levels, Finalized: f.finalized}
}

// Close unmaps and closes every array's backing file, releasing all
// storage the BField owns. Idempotent.
func (f *BField) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	var g errgroup.Group
	for _, a := range f.arrays {
		a := a
		g.Go(a.Close)
	}
	return g.Wait()
}

// parseArrayFilename splits "<base>.<i>.bfd" into base and i.
func parseArrayFilename(name string) (string, int, error) {
	if !strings.HasSuffix(name, ".bfd") {
		return "", 0, fmt.Errorf("bfield: %s is not a .bfd file", name)
	}
	trimmed := strings.TrimSuffix(name, ".bfd")
	dot := strings.LastIndex(trimmed, ".")
	if dot < 0 {
		return "", 0, fmt.Errorf("bfield: %s does not encode an array index", name)
	}
	idx, err := strconv.Atoi(trimmed[dot+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bfield: %s does not encode an array index: %w", name, err)
	}
	return trimmed[:dot], idx, nil
}

// peekHeader reads just enough of f to decode its header, without
// mmapping the whole file — used by Load to learn the cascade's shared
// parameters (a, k, nu, kappa) from Array[0] before opening siblings.
func peekHeader(f *os.File) (*arrayHeader, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	prefix := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(f, prefix); err != nil {
		return nil, errors.Join(bferrors.ErrTruncatedFile, err)
	}
	if !bytes.Equal(prefix[0:4], []byte(magicBytes)) {
		return nil, bferrors.ErrInvalidMagic
	}
	otherLen := binary.LittleEndian.Uint64(prefix[60:68])
	if otherLen > uint64(stat.Size()) {
		return nil, bferrors.ErrTruncatedFile
	}
	full := make([]byte, fixedHeaderSize+otherLen)
	copy(full, prefix)
	if otherLen > 0 {
		if _, err := io.ReadFull(f, full[fixedHeaderSize:]); err != nil {
			return nil, errors.Join(bferrors.ErrTruncatedFile, err)
		}
	}
	return decodeHeader(full)
}

// Load opens a previously created (and typically finalized) cascade for
// querying, given the path to Array[0]. Sibling files
// "<base>.<i>.bfd" are opened in parallel with errgroup, mirroring the
// teacher's parallel block-build worker fan-out applied here to
// independent file opens rather than independent block builds. Magic,
// version, and (k, nu, kappa, a) are validated to match across all
// siblings, and the index set must form exactly {0, ..., a-1}
// (spec.md §6).
func Load(pathToArray0 string, readOnly bool, opts ...Option) (*BField, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dir := filepath.Dir(pathToArray0)
	base, idx, err := parseArrayFilename(filepath.Base(pathToArray0))
	if err != nil {
		return nil, err
	}
	if idx != 0 {
		return nil, fmt.Errorf("bfield: load must be given array 0's path, got index %d", idx)
	}

	pf, err := os.Open(pathToArray0)
	if err != nil {
		return nil, fmt.Errorf("bfield: open %s: %w", pathToArray0, err)
	}
	hdr0, err := peekHeader(pf)
	closeErr := pf.Close()
	if err != nil {
		return nil, errors.Join(err, closeErr)
	}
	if closeErr != nil {
		return nil, closeErr
	}

	total := int(hdr0.A)
	if total <= 0 {
		return nil, bferrors.ErrCorruptArray
	}

	codec := combinatorial.NewCodec(uint8(hdr0.Nu), uint8(hdr0.Kappa))

	arrays := make([]*Array, total)
	var g errgroup.Group
	for i := 0; i < total; i++ {
		i := i
		g.Go(func() error {
			arr, err := openArray(arrayPath(dir, base, i), readOnly, codec, cfg.hasher)
			if err != nil {
				return err
			}
			arrays[i] = arr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Join(err, closeLoaded(arrays))
	}

	seen := make([]bool, total)
	for _, a := range arrays {
		if a.hdr.K != hdr0.K || a.hdr.Nu != hdr0.Nu || a.hdr.Kappa != hdr0.Kappa || int(a.hdr.A) != total {
			return nil, errors.Join(bferrors.ErrParameterMismatch, closeLoaded(arrays))
		}
		if int(a.hdr.Idx) < 0 || int(a.hdr.Idx) >= total || seen[a.hdr.Idx] {
			return nil, errors.Join(bferrors.ErrCorruptArray, closeLoaded(arrays))
		}
		seen[a.hdr.Idx] = true
	}

	allFinalized := true
	for _, a := range arrays {
		if !a.finalized {
			allFinalized = false
			break
		}
	}

	return &BField{
		dir:  dir,
		base: base,
		params: Params{
			Size:         arrays[0].hdr.L,
			NHashes:      uint8(hdr0.K),
			MarkerWidth:  uint8(hdr0.Nu),
			NMarkerBits:  uint8(hdr0.Kappa),
			MaxValue:     hdr0.Theta,
			NSecondaries: uint8(total - 1),
			OtherParams:  hdr0.OtherParams,
		},
		arrays:    arrays,
		codec:     codec,
		hasher:    cfg.hasher,
		finalized: allFinalized,
	}, nil
}

func closeLoaded(arrays []*Array) error {
	var err error
	for _, a := range arrays {
		if a != nil {
			err = errors.Join(err, a.Close())
		}
	}
	return err
}
