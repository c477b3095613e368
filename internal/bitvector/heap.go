package bitvector

// heapBackend stores the bit region in a plain heap-allocated buffer.
type heapBackend struct {
	data []byte
}

func (h *heapBackend) bytes() []byte  { return h.data }
func (h *heapBackend) flush() error   { return nil }
func (h *heapBackend) readOnly() bool { return false }
