// Package bitvector implements a fixed-length bit array addressed by bit
// index, with windowed get/or/popcount operations that may straddle a
// 64-bit machine-word boundary. Storage is dispatched statically to one
// of two backends: heap-allocated or a view into an mmap'd file region.
package bitvector

import (
	"encoding/binary"
	"math/bits"

	bferrors "github.com/bfieldstore/bfield/errors"
)

// backend is the storage behind a BitVector. Dispatch between heapBackend
// and mmapBackend is static, chosen once at construction by the caller
// (Array decides heap vs mmap per the BField's in_memory flag).
type backend interface {
	bytes() []byte
	flush() error
	readOnly() bool
}

// BitVector is a contiguous, word-aligned bit array.
type BitVector struct {
	bits uint64
	b    backend
}

// WordBytes returns ceil(bitsLen/64)*8, the byte length of the
// word-aligned backing store for a bitsLen-bit vector.
func WordBytes(bitsLen uint64) uint64 {
	return ((bitsLen + 63) / 64) * 8
}

// NewHeap allocates a zero-initialized, word-aligned bit vector of
// bitsLen bits backed by heap memory.
func NewHeap(bitsLen uint64) *BitVector {
	return &BitVector{bits: bitsLen, b: &heapBackend{data: make([]byte, WordBytes(bitsLen))}}
}

// NewMmapView wraps an existing byte slice — a view into a larger mmap
// region the caller owns — as the backing store for a bitsLen-bit
// vector. len(data) must equal WordBytes(bitsLen). flush is invoked by
// Flush unless readOnly is set, in which case Flush is a no-op.
func NewMmapView(bitsLen uint64, data []byte, readOnly bool, flush func() error) *BitVector {
	return &BitVector{bits: bitsLen, b: &mmapBackend{data: data, ro: readOnly, flushFn: flush}}
}

// BitsLen returns the logical bit length (before word rounding).
func (v *BitVector) BitsLen() uint64 { return v.bits }

// Bytes exposes the raw backing storage, e.g. for checksumming the bit
// region at Finalize.
func (v *BitVector) Bytes() []byte { return v.b.bytes() }

// ReadOnly reports whether the backend forbids OrWindow.
func (v *BitVector) ReadOnly() bool { return v.b.readOnly() }

// Flush propagates writes to stable storage (msync on mmap, a no-op on
// heap or read-only backends).
func (v *BitVector) Flush() error { return v.b.flush() }

func windowMask(nu uint8) uint64 {
	if nu >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<nu - 1
}

func loadWord(data []byte, wordIdx uint64) uint64 {
	off := wordIdx * 8
	return binary.LittleEndian.Uint64(data[off : off+8])
}

func orWord(data []byte, wordIdx uint64, bits uint64) {
	off := wordIdx * 8
	cur := binary.LittleEndian.Uint64(data[off : off+8])
	binary.LittleEndian.PutUint64(data[off:off+8], cur|bits)
}

// GetWindow returns bits [i, i+nu) as a uint64, LSB = bit i. Handles
// windows that straddle a 64-bit word boundary.
func (v *BitVector) GetWindow(i uint64, nu uint8) uint64 {
	data := v.b.bytes()
	wordIdx := i / 64
	bitOff := i % 64
	result := loadWord(data, wordIdx) >> bitOff
	if bitOff+uint64(nu) > 64 {
		fromLow := 64 - bitOff
		result |= loadWord(data, wordIdx+1) << fromLow
	}
	return result & windowMask(nu)
}

// PopcountWindow is equivalent to popcount(GetWindow(i, nu)).
func (v *BitVector) PopcountWindow(i uint64, nu uint8) int {
	return bits.OnesCount64(v.GetWindow(i, nu))
}

// OrWindow ORs a nu-bit pattern into bits [i, i+nu). Returns
// ErrReadOnly if the backend is not writable.
func (v *BitVector) OrWindow(i uint64, nu uint8, pattern uint64) error {
	if v.b.readOnly() {
		return bferrors.ErrReadOnly
	}
	data := v.b.bytes()
	pattern &= windowMask(nu)
	wordIdx := i / 64
	bitOff := i % 64
	orWord(data, wordIdx, pattern<<bitOff)
	if bitOff+uint64(nu) > 64 {
		fromLow := 64 - bitOff
		orWord(data, wordIdx+1, pattern>>fromLow)
	}
	return nil
}
