package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wachiwi/rover-view/pkg/mjpeg"
	"go.opentelemetry.io/otel/metric"
)

// Frame sources.
const (
	SourceDevice  = "device"
	SourcePattern = "pattern"
	SourceStdin   = "-"
)

var (
	ErrAlreadyStreaming  = errors.New("camera is already streaming")
	ErrNoFrame           = errors.New("no frame available yet")
	ErrStaleFrame        = errors.New("frame is stale")
	ErrDeviceUnavailable = errors.New("camera device not available on this platform")
	ErrStopping          = errors.New("previous capture loop is still stopping")
)

// Camera reads an MJPEG byte stream from its source, extracts frames and keeps
// the latest one for readers and subscribers.
type Camera struct {
	mu             sync.RWMutex
	latestFrame    []byte
	lastFrameTime  time.Time
	isStreaming    bool
	cancel         context.CancelFunc
	done           chan struct{}
	metrics        metric.Registration
	loggedFallback bool // Track if we've logged the fallback message

	width        int
	height       int
	fps          int
	source       string
	chunkSize    int
	staleAfter   time.Duration
	restartDelay time.Duration
	stopTimeout  time.Duration
	log          *slog.Logger
	openSource   func(ctx context.Context) (io.ReadCloser, error)

	parser   *mjpeg.Parser
	hub      *hub
	restarts atomic.Uint64
}

// Config holds camera configuration
type Config struct {
	Width  int
	Height int
	FPS    int
	// Source is SourceDevice, SourcePattern, SourceStdin or a file path.
	Source string
	// BufferSize is the largest frame in bytes; bigger frames are dropped.
	BufferSize   int
	ChunkSize    int
	StaleAfter   time.Duration
	RestartDelay time.Duration
	Logger       *slog.Logger
}

// Stats describes the capture pipeline.
type Stats struct {
	mjpeg.Stats
	Source      string    `json:"source"`
	Streaming   bool      `json:"streaming"`
	Subscribers int       `json:"subscribers"`
	Restarts    uint64    `json:"restarts"`
	LastFrame   time.Time `json:"last_frame"`
}

// NewCamera creates a new camera instance with the given configuration
func NewCamera(config Config) (*Camera, error) {
	if config.Width == 0 {
		config.Width = 640
	}
	if config.Height == 0 {
		config.Height = 480
	}
	if config.FPS == 0 {
		config.FPS = 30
	}
	if config.Source == "" {
		config.Source = SourceDevice
	}
	if config.BufferSize == 0 {
		config.BufferSize = mjpeg.DefaultCapacity
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = mjpeg.DefaultChunkSize
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 5 * time.Second
	}
	if config.RestartDelay == 0 {
		config.RestartDelay = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	c := &Camera{
		width:        config.Width,
		height:       config.Height,
		fps:          config.FPS,
		source:       config.Source,
		chunkSize:    config.ChunkSize,
		staleAfter:   config.StaleAfter,
		restartDelay: config.RestartDelay,
		stopTimeout:  5 * time.Second,
		log:          config.Logger,
		hub:          newHub(),
	}
	c.openSource = c.open

	parser, err := mjpeg.NewParser(mjpeg.Config{
		Capacity: config.BufferSize,
		OnFrame:  c.publish,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frame parser: %w", err)
	}
	c.parser = parser
	return c, nil
}

// Start begins capturing frames from the camera
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStreaming {
		return ErrAlreadyStreaming
	}
	if c.done != nil {
		// A loop that outlived Stop still owns the parser.
		select {
		case <-c.done:
		default:
			return ErrStopping
		}
	}

	reg, err := c.registerMetrics()
	if err != nil {
		c.log.Warn("Failed to register camera metrics", "error", err)
	}
	c.metrics = reg

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.isStreaming = true
	c.cancel = cancel
	c.done = done
	c.hub.open()

	go c.captureLoop(ctx, done)
	c.log.Info("Camera started", "source", c.source, "width", c.width, "height", c.height, "fps", c.fps, "buffer", c.parser.Capacity())
	return nil
}

// Stop stops capturing frames and closes all subscriber streams. If the loop
// does not exit in time Stop returns anyway, and Start fails with ErrStopping
// until it does.
func (c *Camera) Stop() {
	c.mu.Lock()
	if !c.isStreaming {
		c.mu.Unlock()
		return
	}
	c.isStreaming = false
	c.cancel()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
	case <-time.After(c.stopTimeout):
		c.log.Warn("Camera capture loop did not exit in time", "timeout", c.stopTimeout)
	}
}

// GetFrame returns a copy of the latest captured frame as JPEG bytes.
func (c *Camera) GetFrame() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latestFrame == nil {
		return nil, ErrNoFrame
	}
	// Check if frame is stale (e.g. process died but variable wasn't cleared)
	if age := time.Since(c.lastFrameTime); age > c.staleAfter {
		return nil, fmt.Errorf("%w: %s old", ErrStaleFrame, age.Round(time.Millisecond))
	}

	// Return a copy to prevent race conditions
	frame := make([]byte, len(c.latestFrame))
	copy(frame, c.latestFrame)
	return frame, nil
}

// LastFrameTime returns when the latest frame was extracted.
func (c *Camera) LastFrameTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFrameTime
}

// IsStreaming returns whether the camera is currently streaming
func (c *Camera) IsStreaming() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isStreaming
}

// Subscribe returns a stream that receives every frame extracted from now on.
// Once the camera has stopped, the stream is already ended and Next returns
// ErrNoFrames; subscribing before the first Start is allowed.
func (c *Camera) Subscribe() *Stream {
	return c.hub.subscribe()
}

// Stats returns parser and capture counters.
func (c *Camera) Stats() Stats {
	c.mu.RLock()
	streaming, last := c.isStreaming, c.lastFrameTime
	c.mu.RUnlock()

	return Stats{
		Stats:       c.parser.Stats(),
		Source:      c.source,
		Streaming:   streaming,
		Subscribers: c.hub.count(),
		Restarts:    c.restarts.Load(),
		LastFrame:   last,
	}
}

// publish is the parser's frame handler. The view is only valid during the
// call, so it is copied once and the copy is shared read-only.
func (c *Camera) publish(view []byte) {
	frame := mjpeg.Retain(view)
	now := time.Now()

	c.mu.Lock()
	c.latestFrame = frame
	c.lastFrameTime = now
	c.mu.Unlock()

	c.hub.broadcast(frame)

	ctx := context.Background()
	framesCounter.Add(ctx, 1)
	frameSize.Record(ctx, int64(len(frame)))
}

// captureLoop runs the source through the parser, reopening restartable
// sources until ctx is cancelled.
func (c *Camera) captureLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.markStopped(done)

	for {
		err := c.captureOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		if !c.restartable() {
			if err != nil {
				c.log.Error("Camera stream failed", "source", c.source, "error", err)
			} else {
				c.log.Info("Camera stream ended", "source", c.source)
			}
			return
		}

		c.restarts.Add(1)
		restartsCounter.Add(ctx, 1)
		c.log.Warn("Camera stream ended, restarting", "source", c.source, "error", err, "delay", c.restartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.restartDelay):
		}
	}
}

func (c *Camera) captureOnce(ctx context.Context) error {
	rc, err := c.openSource(ctx)
	if err != nil {
		return err
	}
	// Closing the source unblocks a pending read on cancellation.
	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer func() {
		if stop() {
			rc.Close()
		}
	}()

	c.parser.Reset()
	return mjpeg.Pump(ctx, rc, c.parser, mjpeg.PumpOptions{
		ChunkSize: c.chunkSize,
		Logger:    c.log,
	})
}

// markStopped releases what Start acquired, unless a newer Start already
// replaced this loop.
func (c *Camera) markStopped(done chan struct{}) {
	c.mu.Lock()
	if c.done != done {
		c.mu.Unlock()
		return
	}
	c.isStreaming = false
	c.cancel()
	reg := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if reg != nil {
		if err := reg.Unregister(); err != nil {
			c.log.Warn("Failed to unregister camera metrics", "error", err)
		}
	}
	c.hub.closeAll()
	c.log.Info("Camera stopped", "source", c.source)
}

func (c *Camera) restartable() bool {
	return c.source == SourceDevice || c.source == SourcePattern
}

// open returns the raw MJPEG byte stream for the configured source.
func (c *Camera) open(ctx context.Context) (io.ReadCloser, error) {
	switch c.source {
	case SourceDevice:
		// Platform-specific implementation:
		// - camera_rpi.go on linux/arm64 (Raspberry Pi Camera Module v3)
		// - camera_darwin.go on macOS (built-in webcam via ffmpeg)
		// - camera_other.go on other platforms (returns error)
		rc, err := c.openDevice(ctx)
		if err == nil {
			return rc, nil
		}

		// Log the error (only once per camera instance to avoid spam)
		c.mu.Lock()
		if !c.loggedFallback {
			c.log.Warn("Camera capture failed, using placeholder frames", "error", err)
			c.loggedFallback = true
		}
		c.mu.Unlock()

		// Fallback to placeholder for development/testing if camera not available
		return newPatternSource(ctx, c.width, c.height, c.fps), nil
	case SourcePattern:
		return newPatternSource(ctx, c.width, c.height, c.fps), nil
	case SourceStdin:
		return os.Stdin, nil
	default:
		f, err := os.Open(c.source)
		if err != nil {
			return nil, fmt.Errorf("failed to open stream file: %w", err)
		}
		return f, nil
	}
}

// generatePlaceholderFrame creates a simple colored frame for testing
func generatePlaceholderFrame(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Create a simple pattern with timestamp
	timestamp := time.Now().UnixMilli() / 100
	color := byte(timestamp % 256)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := y*img.Stride + x*4
			img.Pix[offset] = color
			img.Pix[offset+1] = byte((x * 255) / width)
			img.Pix[offset+2] = byte((y * 255) / height)
			img.Pix[offset+3] = 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	return buf.Bytes(), nil
}
