package mjpeg

// FrameBuffer is a fixed-capacity byte container that a Parser overwrites in
// place for every frame. It never grows.
type FrameBuffer struct {
	storage []byte
	offset  int
}

// NewFrameBuffer allocates a buffer that holds at most capacity bytes.
func NewFrameBuffer(capacity int) *FrameBuffer {
	return &FrameBuffer{storage: make([]byte, capacity)}
}

// Reset rewinds the write offset. The previous contents stay in storage but
// are no longer part of the view.
func (b *FrameBuffer) Reset() {
	b.offset = 0
}

// Append writes c at the current offset. It returns false, leaving the buffer
// untouched, when the buffer is full.
func (b *FrameBuffer) Append(c byte) bool {
	if b.offset >= len(b.storage) {
		return false
	}
	b.storage[b.offset] = c
	b.offset++
	return true
}

// View returns the bytes written since the last Reset. The slice aliases the
// buffer's storage and is overwritten by the next frame.
func (b *FrameBuffer) View() []byte {
	return b.storage[:b.offset:b.offset]
}

// Len returns the number of bytes written since the last Reset.
func (b *FrameBuffer) Len() int {
	return b.offset
}

// Cap returns the fixed capacity.
func (b *FrameBuffer) Cap() int {
	return len(b.storage)
}
