package bfield

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	bferrors "github.com/bfieldstore/bfield/errors"
	"github.com/bfieldstore/bfield/internal/bitvector"
	"github.com/bfieldstore/bfield/internal/combinatorial"
	"github.com/bfieldstore/bfield/internal/hashfanout"
)

// Array is one level of the B-field cascade: it owns a BitVector plus
// the header describing its parameters, and implements INSERT and
// LOOKUP at one level (spec.md §4.4).
type Array struct {
	hdr    *arrayHeader
	codec  *combinatorial.Codec
	hasher hashfanout.Hasher

	bv *bitvector.BitVector

	// Present only for on-disk (non-in_memory) arrays.
	path   string
	file   *os.File
	mm     mmap.MMap
	bitOff uint64
	bitLen uint64

	readOnly  bool
	finalized bool
	closed    bool
}

func arrayPath(dir, base string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d.bfd", base, idx))
}

// createArray allocates a fresh writable Array at level idx of a
// total-array cascade. For on-disk arrays, the whole file (header + bit
// region + footer) is pre-sized with fallocateFile and mapped in one
// mmap region, mirroring the teacher's indexWriter.
func createArray(dir, base string, idx, total int, l uint64, k, nu, kappa uint8, s1, s2, theta uint64, otherParams []byte, inMemory bool, codec *combinatorial.Codec, hasher hashfanout.Hasher) (*Array, error) {
	hdr := &arrayHeader{
		Version:     formatVersion,
		L:           l,
		K:           uint32(k),
		Nu:          uint32(nu),
		Kappa:       uint32(kappa),
		Idx:         uint32(idx),
		A:           uint32(total),
		S1:          s1,
		S2:          s2,
		Theta:       theta,
		OtherParams: append([]byte(nil), otherParams...),
	}

	a := &Array{hdr: hdr, codec: codec, hasher: hasher}

	if inMemory {
		a.bv = bitvector.NewHeap(l)
		a.bitLen = bitvector.WordBytes(l)
		return a, nil
	}

	bitOff := alignUp8(hdr.encodedSize())
	bitLen := bitvector.WordBytes(l)
	totalSize := bitOff + bitLen + footerSize

	path := arrayPath(dir, base, idx)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("bfield: create array file %s: %w", path, err)
	}
	if err := fallocateFile(f, int64(totalSize)); err != nil {
		return nil, errors.Join(fmt.Errorf("bfield: preallocate %s: %w", path, err), f.Close())
	}

	mm, err := mmap.MapRegion(f, int(totalSize), mmap.RDWR, 0, 0)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bfield: mmap %s: %w", path, err), f.Close())
	}
	data := []byte(mm)
	hdr.encodeTo(data[:bitOff])
	bitRegion := data[bitOff : bitOff+bitLen]
	prefaultRegion(bitRegion)
	fadviseFile(int(f.Fd()), int64(bitOff), int64(bitLen))

	a.file = f
	a.mm = mm
	a.path = path
	a.bitOff = bitOff
	a.bitLen = bitLen
	a.bv = bitvector.NewMmapView(l, bitRegion, false, mm.Flush)
	return a, nil
}

// openArray opens a single sibling .bfd file, validating its header and,
// if the array was previously finalized, its bit-region checksum.
func openArray(path string, readOnly bool, codec *combinatorial.Codec, hasher hashfanout.Hasher) (*Array, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("bfield: open array file %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bfield: stat %s: %w", path, err), f.Close())
	}
	if stat.Size() < fixedHeaderSize {
		return nil, errors.Join(bferrors.ErrTruncatedFile, f.Close())
	}

	prot := mmap.RDONLY
	if !readOnly {
		prot = mmap.RDWR
	}
	mm, err := mmap.Map(f, prot, 0)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("bfield: mmap %s: %w", path, err), f.Close())
	}
	data := []byte(mm)

	hdr, err := decodeHeader(data)
	if err != nil {
		return nil, errors.Join(err, mm.Unmap(), f.Close())
	}

	bitOff := alignUp8(hdr.encodedSize())
	bitLen := bitvector.WordBytes(hdr.L)
	expected := bitOff + bitLen + footerSize
	if uint64(stat.Size()) != expected {
		return nil, errors.Join(fmt.Errorf("bfield: %s: %w", path, bferrors.ErrTruncatedFile), mm.Unmap(), f.Close())
	}

	ftr, err := decodeFooter(data[bitOff+bitLen:])
	if err != nil {
		return nil, errors.Join(err, mm.Unmap(), f.Close())
	}
	sealed := ftr.Sealed != 0
	if sealed {
		sum := xxhash.Sum64(data[bitOff : bitOff+bitLen])
		if sum != ftr.Checksum {
			return nil, errors.Join(bferrors.ErrChecksumFailed, mm.Unmap(), f.Close())
		}
	}

	effectiveReadOnly := readOnly || sealed
	a := &Array{
		hdr:       hdr,
		codec:     codec,
		hasher:    hasher,
		file:      f,
		mm:        mm,
		path:      path,
		bitOff:    bitOff,
		bitLen:    bitLen,
		readOnly:  effectiveReadOnly,
		finalized: sealed,
	}
	a.bv = bitvector.NewMmapView(hdr.L, data[bitOff:bitOff+bitLen], effectiveReadOnly, mm.Flush)
	return a, nil
}

// Insert encodes value into a marker pattern and ORs it into the k
// hash-fanout windows for key (spec.md §4.4).
func (a *Array) Insert(key []byte, value uint64) error {
	if a.closed {
		return bferrors.ErrClosed
	}
	if a.finalized {
		return bferrors.ErrFinalized
	}
	if a.readOnly {
		return bferrors.ErrReadOnly
	}
	if value >= a.hdr.Theta {
		return bferrors.ErrValueOutOfRange
	}

	pattern := a.codec.Encode(value)
	idxs := hashfanout.Indices(a.hasher, key, a.hdr.S1, a.hdr.S2, a.hdr.L, uint8(a.hdr.Nu), uint8(a.hdr.K), nil)
	for _, idx := range idxs {
		if err := a.bv.OrWindow(idx, uint8(a.hdr.Nu), pattern); err != nil {
			return err
		}
	}
	return nil
}

// Lookup ANDs the k hash-fanout windows for key and classifies the
// result by popcount against kappa (spec.md §4.4). It allocates no
// shared mutable state, so it is safe to call from any number of
// goroutines concurrently.
func (a *Array) Lookup(key []byte) (Lookup, uint64, error) {
	if a.closed {
		return Absent, 0, bferrors.ErrClosed
	}
	idxs := hashfanout.Indices(a.hasher, key, a.hdr.S1, a.hdr.S2, a.hdr.L, uint8(a.hdr.Nu), uint8(a.hdr.K), nil)
	acc := ^uint64(0)
	for _, idx := range idxs {
		acc &= a.bv.GetWindow(idx, uint8(a.hdr.Nu))
	}
	w := a.codec.Popcount(acc)
	switch {
	case w < int(a.hdr.Kappa):
		return Absent, 0, nil
	case w == int(a.hdr.Kappa):
		return Found, a.codec.Decode(acc), nil
	default:
		return Indeterminate, 0, nil
	}
}

// Finalize flushes and seals the array: checksums the bit region, marks
// it sealed in the footer, and msyncs. After Finalize, Insert returns
// ErrFinalized.
func (a *Array) Finalize() error {
	if a.finalized {
		return nil
	}
	if a.readOnly {
		return bferrors.ErrReadOnly
	}

	a.finalized = true
	a.readOnly = true
	if a.mm == nil {
		return nil // heap-backed array: nothing to persist
	}

	data := []byte(a.mm)
	sum := xxhash.Sum64(data[a.bitOff : a.bitOff+a.bitLen])
	ftr := &footer{Checksum: sum, Sealed: 1}
	ftr.encodeTo(data[a.bitOff+a.bitLen:])
	if err := a.mm.Flush(); err != nil {
		return fmt.Errorf("bfield: flush %s: %w", a.path, err)
	}
	return nil
}

// Verify recomputes the bit-region checksum and compares it against the
// footer, mirroring the teacher's Index.Verify(). A no-op for
// not-yet-finalized or heap-backed arrays, whose footer is meaningless.
func (a *Array) Verify() error {
	if a.mm == nil || !a.finalized {
		return nil
	}
	data := []byte(a.mm)
	ftr, err := decodeFooter(data[a.bitOff+a.bitLen:])
	if err != nil {
		return err
	}
	sum := xxhash.Sum64(data[a.bitOff : a.bitOff+a.bitLen])
	if sum != ftr.Checksum {
		return bferrors.ErrChecksumFailed
	}
	return nil
}

// Close unmaps and closes the array's backing file, if any. Idempotent.
func (a *Array) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var unmapErr, closeErr error
	if a.mm != nil {
		unmapErr = a.mm.Unmap()
	}
	if a.file != nil {
		closeErr = a.file.Close()
	}
	return errors.Join(unmapErr, closeErr)
}
