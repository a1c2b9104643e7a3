package media

import (
	"sync"
	"sync/atomic"
)

// poolMaxSize bounds which released buffers are worth pooling; larger
// ones are left to the garbage collector, matching the 256KiB cutoff
// nonchalant's message pool uses for the same reason (pooling huge rare
// buffers wastes more memory holding them idle than it saves).
const poolMaxSize = 256 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 64*1024)
		return &b
	},
}

// RefCountedBytes is the "atomically-reference-counted byte slice" the
// registry's broadcast fan-out passes to every subscriber without
// copying. Retain increments the count; Release decrements it and,
// when it reaches zero, returns the backing array to a freelist.
type RefCountedBytes struct {
	data  []byte
	count atomic.Int32
}

// NewRefCountedBytes wraps data with an initial reference count of 1.
// Ownership of data transfers to the RefCountedBytes.
func NewRefCountedBytes(data []byte) *RefCountedBytes {
	r := &RefCountedBytes{data: data}
	r.count.Store(1)
	return r
}

// AcquireRefCountedBytes copies src into a pooled buffer and wraps it,
// so the caller's own buffer can be reused immediately.
func AcquireRefCountedBytes(src []byte) *RefCountedBytes {
	bp := bufferPool.Get().(*[]byte)
	buf := (*bp)[:0]
	buf = append(buf, src...)
	return NewRefCountedBytes(buf)
}

// Bytes returns the wrapped slice. Callers must not mutate it and must
// not retain it past their own Release call.
func (r *RefCountedBytes) Bytes() []byte { return r.data }

// Retain increments the reference count and returns r, for the common
// "store one more reference" call pattern.
func (r *RefCountedBytes) Retain() *RefCountedBytes {
	r.count.Add(1)
	return r
}

// Release decrements the reference count. When it reaches zero the
// backing array is returned to the pool (if small enough) for reuse.
func (r *RefCountedBytes) Release() {
	if r.count.Add(-1) != 0 {
		return
	}
	if cap(r.data) <= poolMaxSize {
		b := r.data[:0]
		bufferPool.Put(&b)
	}
	r.data = nil
}
