// Package bufpool provides a pooled, fixed-capacity byte buffer used to keep
// the send/receive hot paths allocation-free.
package bufpool

// Buffer is an owned byte array with a mutable logical length and a
// monotonically increasing version, bumped each time it is returned to a
// Pool. Tests use Version to detect accidental reuse of a buffer the pool
// has already handed out again.
type Buffer struct {
	data    []byte
	length  int
	pooled  bool
	version uint64
}

// newBuffer allocates a buffer of the given capacity.
func newBuffer(capacity int, pooled bool) *Buffer {
	return &Buffer{data: make([]byte, capacity), pooled: pooled}
}

// Bytes returns the logical (length-bounded) view of the buffer's storage.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.length]
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Len returns the current logical length.
func (b *Buffer) Len() int {
	return b.length
}

// SetLen sets the logical length. It panics if length exceeds capacity,
// which would indicate a caller bug rather than a recoverable condition.
func (b *Buffer) SetLen(length int) {
	if length > cap(b.data) {
		panic("bufpool: length exceeds capacity")
	}
	b.length = length
	b.data = b.data[:cap(b.data)]
}

// Pooled reports whether this buffer came from (and may be returned to) a
// Pool, as opposed to being a caller-allocated oversize buffer.
func (b *Buffer) Pooled() bool {
	return b.pooled
}

// Version returns the buffer's reuse counter.
func (b *Buffer) Version() uint64 {
	return b.version
}
