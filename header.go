package bfield

import (
	"bytes"
	"encoding/binary"

	bferrors "github.com/bfieldstore/bfield/errors"
)

// On-disk layout (spec.md §6), little-endian:
//
//	Offset  Bytes  Field
//	0       4      Magic = ASCII "BFLD"
//	4       4      Version = 1
//	8       8      L (bit length of this array)
//	16      4      k (n_hashes)
//	20      4      nu (marker_width)
//	24      4      kappa (n_marker_bits)
//	28      4      i (this array's index in the cascade)
//	32      4      a (total n arrays in cascade)
//	36      8      s1 (seed 1)
//	44      8      s2 (seed 2)
//	52      8      theta (max_value)
//	60      8      len(other_params)
//	68      var    other_params bytes
//	aligned up to 8  ceil(L/64)*8 bytes of bit array
//
// A 16-byte footer follows the bit region (§4.6 of SPEC_FULL.md): an
// xxHash64 checksum of the bit region, a sealed flag, and reserved
// padding. The footer is a further section beyond the region the header
// describes, so invariant 4 ("headers exactly describe the trailing bit
// region") still holds.
const (
	magicBytes      = "BFLD"
	formatVersion   = uint32(1)
	fixedHeaderSize = 68
	footerSize      = 16
)

type arrayHeader struct {
	Version     uint32
	L           uint64
	K           uint32
	Nu          uint32
	Kappa       uint32
	Idx         uint32
	A           uint32
	S1          uint64
	S2          uint64
	Theta       uint64
	OtherParams []byte
}

func (h *arrayHeader) encodedSize() uint64 {
	return fixedHeaderSize + uint64(len(h.OtherParams))
}

func (h *arrayHeader) encodeTo(buf []byte) {
	copy(buf[0:4], magicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.L)
	binary.LittleEndian.PutUint32(buf[16:20], h.K)
	binary.LittleEndian.PutUint32(buf[20:24], h.Nu)
	binary.LittleEndian.PutUint32(buf[24:28], h.Kappa)
	binary.LittleEndian.PutUint32(buf[28:32], h.Idx)
	binary.LittleEndian.PutUint32(buf[32:36], h.A)
	binary.LittleEndian.PutUint64(buf[36:44], h.S1)
	binary.LittleEndian.PutUint64(buf[44:52], h.S2)
	binary.LittleEndian.PutUint64(buf[52:60], h.Theta)
	binary.LittleEndian.PutUint64(buf[60:68], uint64(len(h.OtherParams)))
	copy(buf[68:], h.OtherParams)
}

// decodeHeader parses a header from buf, which must hold at least
// fixedHeaderSize+otherParamsLen bytes.
func decodeHeader(buf []byte) (*arrayHeader, error) {
	if len(buf) < fixedHeaderSize {
		return nil, bferrors.ErrTruncatedFile
	}
	if !bytes.Equal(buf[0:4], []byte(magicBytes)) {
		return nil, bferrors.ErrInvalidMagic
	}

	h := &arrayHeader{
		Version: binary.LittleEndian.Uint32(buf[4:8]),
	}
	if h.Version != formatVersion {
		return nil, bferrors.ErrInvalidVersion
	}
	h.L = binary.LittleEndian.Uint64(buf[8:16])
	h.K = binary.LittleEndian.Uint32(buf[16:20])
	h.Nu = binary.LittleEndian.Uint32(buf[20:24])
	h.Kappa = binary.LittleEndian.Uint32(buf[24:28])
	h.Idx = binary.LittleEndian.Uint32(buf[28:32])
	h.A = binary.LittleEndian.Uint32(buf[32:36])
	h.S1 = binary.LittleEndian.Uint64(buf[36:44])
	h.S2 = binary.LittleEndian.Uint64(buf[44:52])
	h.Theta = binary.LittleEndian.Uint64(buf[52:60])

	otherLen := binary.LittleEndian.Uint64(buf[60:68])
	if uint64(len(buf)) < fixedHeaderSize+otherLen {
		return nil, bferrors.ErrTruncatedFile
	}
	h.OtherParams = append([]byte(nil), buf[68:68+otherLen]...)
	return h, nil
}

// footer trails the bit region: the checksum that lets Verify detect
// corruption, and a sealed flag written at Finalize.
type footer struct {
	Checksum uint64
	Sealed   byte
	Reserved [7]byte
}

func (f *footer) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f.Checksum)
	buf[8] = f.Sealed
	copy(buf[9:16], f.Reserved[:])
}

func decodeFooter(buf []byte) (*footer, error) {
	if len(buf) < footerSize {
		return nil, bferrors.ErrTruncatedFile
	}
	f := &footer{
		Checksum: binary.LittleEndian.Uint64(buf[0:8]),
		Sealed:   buf[8],
	}
	copy(f.Reserved[:], buf[9:16])
	return f, nil
}

func alignUp8(n uint64) uint64 {
	return (n + 7) &^ 7
}
