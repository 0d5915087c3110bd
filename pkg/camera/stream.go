package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type streamID uint64

var ErrClosed = errors.New("stream closed")
var ErrNoFrames = errors.New("no image frames to read")

var streamSeq atomic.Uint64

// Stream delivers the frames extracted after it was created.
// It is intended to be used by a single consumer. Frames are shared with
// other subscribers and must not be modified.
type Stream struct {
	closed    atomic.Bool
	closeOnce sync.Once
	frames    chan []byte
	id        streamID
	stop      func(id streamID)
}

func newStream(frames chan []byte, stop func(streamID)) *Stream {
	return &Stream{
		id:     streamID(streamSeq.Add(1)),
		frames: frames,
		stop:   stop,
	}
}

// Next returns the next frame, blocking until one arrives, the camera stops or
// ctx is done.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return nil, ErrNoFrames
		}
		return frame, nil
	}
}

// Close closes the stream.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.stop != nil {
			s.stop(s.id)
		}
	})
}

// hub fans frames out to subscribers. Slow subscribers lose their oldest
// frame instead of blocking the capture loop.
type hub struct {
	mu      sync.RWMutex
	streams map[streamID]chan []byte
	// closed is set by closeAll until the camera starts again.
	closed bool
}

func newHub() *hub {
	return &hub{streams: make(map[streamID]chan []byte)}
}

func (h *hub) subscribe() *Stream {
	// Room for two frames so the drop-oldest step below never blocks when
	// the consumer reads at the same time.
	frames := make(chan []byte, 2)
	s := newStream(frames, h.unsubscribe)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		// Nothing will publish until the next start, so end the stream now.
		close(frames)
		return s
	}
	h.streams[s.id] = frames
	return s
}

// open accepts subscribers again after closeAll.
func (h *hub) open() {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()
}

func (h *hub) unsubscribe(id streamID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if frames, ok := h.streams[id]; ok {
		close(frames)
		delete(h.streams, id)
	}
}

func (h *hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, frames := range h.streams {
		select {
		case frames <- frame:
		default:
			// Consumer is slow, drop a frame and add the newest frame
			select {
			case <-frames:
			default:
			}
			select {
			case frames <- frame:
			default:
			}
		}
	}
}

// closeAll ends every subscription; pending Next calls return ErrNoFrames.
// Streams subscribed before the next open are closed from the start.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, frames := range h.streams {
		close(frames)
		delete(h.streams, id)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}
