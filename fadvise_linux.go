//go:build linux

package bfield

import "golang.org/x/sys/unix"

// fadviseFile hints to the kernel that an array's .bfd file will be
// accessed at scattered, unpredictable offsets: each insert or lookup
// touches k hash-fanout windows with no locality between them. This
// disables readahead, which would otherwise pull in pages the cascade
// will never visit next. Applied once when an array file is created.
// Best-effort: errors are silently ignored.
func fadviseFile(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_RANDOM)
}
