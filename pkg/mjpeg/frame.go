package mjpeg

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"
)

// Retain returns a copy of a frame handed to a FrameHandler, safe to keep
// after the handler returns.
func Retain(frame []byte) []byte {
	return bytes.Clone(frame)
}

// Frame is a frame whose bytes belong to the receiver. Call Release when done
// so the buffer can be reused.
type Frame struct {
	Data []byte
	Seq  uint64
	Time time.Time

	pool *FramePool
	buf  *[]byte
}

// Release returns the frame's buffer to its pool. Data must not be used
// afterwards. Calling Release more than once is a no-op.
func (f *Frame) Release() {
	if f.pool == nil || f.buf == nil {
		return
	}
	f.pool.put(f.buf)
	f.buf = nil
	f.Data = nil
}

// FramePool recycles frame buffers handed out by Owned.
type FramePool struct {
	size int
	pool sync.Pool
}

// NewFramePool returns a pool whose buffers start at size bytes, normally the
// parser capacity so that any emitted frame fits without growing.
func NewFramePool(size int) *FramePool {
	fp := &FramePool{size: size}
	fp.pool.New = func() any {
		b := make([]byte, 0, size)
		return &b
	}
	return fp
}

func (fp *FramePool) get(n int) *[]byte {
	b := fp.pool.Get().(*[]byte)
	if cap(*b) < n {
		*b = make([]byte, n)
	}
	*b = (*b)[:n]
	return b
}

func (fp *FramePool) put(b *[]byte) {
	*b = (*b)[:0]
	fp.pool.Put(b)
}

// Owned adapts fn into a FrameHandler that copies every emitted frame into a
// pooled buffer and transfers it to fn. fn may hold the frame past its return,
// for example to hand it to another goroutine, and must Release it.
func Owned(pool *FramePool, fn func(*Frame)) FrameHandler {
	var seq atomic.Uint64
	return func(view []byte) {
		buf := pool.get(len(view))
		copy(*buf, view)
		fn(&Frame{
			Data: *buf,
			Seq:  seq.Add(1),
			Time: time.Now(),
			pool: pool,
			buf:  buf,
		})
	}
}
