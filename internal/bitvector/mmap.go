package bitvector

// mmapBackend stores the bit region as a view into a caller-owned mmap
// region. The mmap.MMap itself (and its Unmap lifecycle) is owned by the
// caller — typically an Array mapping its whole .bfd file in one region
// that also covers the header and footer — so this backend only needs a
// byte slice and a flush callback.
type mmapBackend struct {
	data    []byte
	ro      bool
	flushFn func() error
}

func (m *mmapBackend) bytes() []byte { return m.data }

func (m *mmapBackend) flush() error {
	if m.ro || m.flushFn == nil {
		return nil
	}
	return m.flushFn()
}

func (m *mmapBackend) readOnly() bool { return m.ro }
