// Package errors defines all exported error sentinels for the bfield library.
//
// This is the single source of truth for error values. The top-level bfield
// package and its internal components all import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import "errors"

// Parameter errors (spec §7): raised at Create, fatal to construction.
var (
	ErrInvalidMarkerWidth  = errors.New("bfield: marker_width must satisfy 1 <= nu <= 64")
	ErrInvalidMarkerBits   = errors.New("bfield: n_marker_bits must satisfy 1 <= kappa <= nu")
	ErrInvalidHashCount    = errors.New("bfield: n_hashes (k) must be >= 1")
	ErrSizeTooSmall        = errors.New("bfield: size must be >= marker_width")
	ErrMaxValueTooLarge    = errors.New("bfield: max_value exceeds C(nu, kappa)")
	ErrInvalidScaledown    = errors.New("bfield: secondary_scaledown must be in (0, 1)")
	ErrInvalidMaxScaledown = errors.New("bfield: max_scaledown must be in (0, 1)")
	ErrEmptyBase           = errors.New("bfield: base filename must not be empty")
)

// Format errors (spec §7): fatal at Load.
var (
	ErrInvalidMagic      = errors.New("bfield: invalid magic number")
	ErrInvalidVersion    = errors.New("bfield: unsupported file version")
	ErrParameterMismatch = errors.New("bfield: sibling array parameters disagree")
	ErrTruncatedFile     = errors.New("bfield: array file is truncated")
	ErrChecksumFailed    = errors.New("bfield: bit region checksum verification failed")
	ErrCorruptArray      = errors.New("bfield: array index set is not {0, ..., a-1}")
)

// Value range errors (spec §7).
var (
	ErrValueOutOfRange = errors.New("bfield: value is >= max_value (theta)")
)

// Operational errors (spec §7): fatal to the operation, not the process.
var (
	ErrFinalized   = errors.New("bfield: array is finalized; insert is no longer permitted")
	ErrReadOnly    = errors.New("bfield: array is read-only")
	ErrClosed      = errors.New("bfield: bfield is closed")
	ErrInvalidPass = errors.New("bfield: pass index out of range for this cascade")
)
