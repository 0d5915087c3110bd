package mjpeg

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// JPEG delimiters. A frame starts with Marker, Start and ends with Marker, End.
const (
	Marker byte = 0xFF
	Start  byte = 0xD8
	End    byte = 0xD9
)

const (
	// DefaultCapacity matches the 512 KiB receive buffer of the rover client.
	DefaultCapacity = 512 * 1024
	// Smallest buffer that can hold an empty frame (start and end marker pairs).
	minCapacity = 4
)

var (
	ErrEmptyChunk      = errors.New("empty chunk")
	ErrFrameOverflow   = errors.New("frame exceeds buffer capacity")
	ErrInvalidCapacity = errors.New("invalid frame buffer capacity")
	ErrInvalidMarkers  = errors.New("invalid frame markers")
)

// Markers holds the three delimiter bytes. Zero fields take the JPEG
// defaults, so 0x00 cannot be used as a delimiter.
type Markers struct {
	Marker byte
	Start  byte
	End    byte
}

// DefaultMarkers are the JPEG SOI/EOI delimiters.
var DefaultMarkers = Markers{Marker: Marker, Start: Start, End: End}

func (m Markers) withDefaults() (Markers, error) {
	if m.Marker == 0 {
		m.Marker = DefaultMarkers.Marker
	}
	if m.Start == 0 {
		m.Start = DefaultMarkers.Start
	}
	if m.End == 0 {
		m.End = DefaultMarkers.End
	}
	if m.Start == m.End || m.Start == m.Marker || m.End == m.Marker {
		return Markers{}, fmt.Errorf("%w: marker %#02x, start %#02x, end %#02x must differ", ErrInvalidMarkers, m.Marker, m.Start, m.End)
	}
	return m, nil
}

// FrameHandler receives every completed frame, start and end markers
// included.
//
// The slice aliases the parser's frame buffer. It is valid only until the
// handler returns: the next frame is assembled in the same storage. Handlers
// that keep the frame must copy it (see Retain and Owned). Handlers must not
// call back into the parser.
type FrameHandler func(frame []byte)

// Config configures a Parser.
type Config struct {
	// Capacity is the frame buffer size in bytes. Frames larger than this
	// are dropped. Defaults to DefaultCapacity.
	Capacity int
	Markers  Markers
	OnFrame  FrameHandler
}

// State is the parser phase.
type State int

const (
	// Searching scans for a start marker.
	Searching State = iota
	// Collecting copies bytes into the frame buffer until an end marker.
	Collecting
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Collecting:
		return "collecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats are cumulative parser counters.
type Stats struct {
	Frames      uint64 `json:"frames"`
	Overflows   uint64 `json:"overflows"`
	EmptyChunks uint64 `json:"empty_chunks"`
	Bytes       uint64 `json:"bytes"`
}

// Parser extracts JPEG frames from an MJPEG byte stream delivered in chunks of
// any size and alignment.
//
// Feed and Reset must not be called concurrently. Stats may be read from any
// goroutine.
type Parser struct {
	buf     *FrameBuffer
	markers Markers
	emit    FrameHandler

	state    State
	lastByte byte
	hasLast  bool

	frames      atomic.Uint64
	overflows   atomic.Uint64
	emptyChunks atomic.Uint64
	bytes       atomic.Uint64
}

// NewParser allocates the frame buffer and returns a parser in the Searching
// state.
func NewParser(config Config) (*Parser, error) {
	if config.Capacity == 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Capacity < minCapacity {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidCapacity, config.Capacity, minCapacity)
	}
	m, err := config.Markers.withDefaults()
	if err != nil {
		return nil, err
	}
	config.Markers = m
	if config.OnFrame == nil {
		config.OnFrame = func([]byte) {}
	}

	return &Parser{
		buf:     NewFrameBuffer(config.Capacity),
		markers: config.Markers,
		emit:    config.OnFrame,
	}, nil
}

// Feed consumes one chunk and calls the frame handler for every frame that
// completes inside it, in stream order.
//
// An empty chunk returns ErrEmptyChunk and leaves the parser untouched. If
// frames outgrow the buffer they are dropped, the rest of the chunk is still
// parsed, and the returned error wraps ErrFrameOverflow. Neither error
// invalidates the parser.
func (p *Parser) Feed(chunk []byte) error {
	if len(chunk) == 0 {
		p.emptyChunks.Add(1)
		return ErrEmptyChunk
	}
	p.bytes.Add(uint64(len(chunk)))

	dropped := 0
	idx := 0
	for idx < len(chunk) {
		switch p.state {
		case Searching:
			idx = p.search(chunk, idx)
		case Collecting:
			var overflow bool
			idx, overflow = p.collect(chunk, idx)
			if overflow {
				dropped++
			}
		}
	}

	if dropped > 0 {
		return fmt.Errorf("%w: dropped %d frame(s) larger than %d bytes", ErrFrameOverflow, dropped, p.buf.Cap())
	}
	return nil
}

// search advances until a start marker pair completes or the chunk ends.
func (p *Parser) search(chunk []byte, idx int) int {
	for idx < len(chunk) {
		cur := chunk[idx]
		idx++

		if p.hasLast && p.lastByte == p.markers.Marker && cur == p.markers.Start {
			p.buf.Reset()
			p.buf.Append(p.markers.Marker)
			p.buf.Append(p.markers.Start)
			p.state = Collecting
			p.lastByte = cur
			return idx
		}
		p.lastByte, p.hasLast = cur, true
	}
	return idx
}

// collect appends bytes until an end marker pair completes, the buffer fills
// up, or the chunk ends. The second result reports a dropped frame.
func (p *Parser) collect(chunk []byte, idx int) (int, bool) {
	for idx < len(chunk) {
		cur := chunk[idx]
		idx++

		if !p.buf.Append(cur) {
			// The byte that hit the limit is consumed with the frame.
			p.overflows.Add(1)
			p.resetSearch()
			return idx, true
		}

		if p.lastByte == p.markers.Marker && cur == p.markers.End {
			p.emit(p.buf.View())
			p.frames.Add(1)
			p.resetSearch()
			return idx, false
		}
		p.lastByte = cur
	}
	return idx, false
}

// resetSearch returns to Searching with no remembered byte.
func (p *Parser) resetSearch() {
	p.state = Searching
	p.lastByte, p.hasLast = 0, false
}

// Reset drops any partially collected frame. Use it when the upstream stream
// restarts so bytes from two streams are never joined.
func (p *Parser) Reset() {
	p.buf.Reset()
	p.resetSearch()
}

// State reports the current phase.
func (p *Parser) State() State {
	return p.state
}

// Capacity returns the frame buffer size.
func (p *Parser) Capacity() int {
	return p.buf.Cap()
}

// Stats returns a snapshot of the counters.
func (p *Parser) Stats() Stats {
	return Stats{
		Frames:      p.frames.Load(),
		Overflows:   p.overflows.Load(),
		EmptyChunks: p.emptyChunks.Load(),
		Bytes:       p.bytes.Load(),
	}
}
