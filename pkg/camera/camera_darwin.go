//go:build darwin

package camera

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// openDevice streams MJPEG from the default macOS webcam using ffmpeg.
// This allows local development with actual camera input
func (c *Camera) openDevice(ctx context.Context) (io.ReadCloser, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found", ErrDeviceUnavailable)
	}

	// -framerate MUST be 30 for most Mac cameras (they don't support arbitrary framerates)
	fps := 30

	stream, err := startProcess(ctx, c.log,
		"ffmpeg",
		"-f", "avfoundation",
		"-framerate", fmt.Sprintf("%d", fps),
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", "0", // Device 0 = default camera
		"-f", "mjpeg", // MJPEG output stream
		"-q:v", "5", // Quality
		"-hide_banner",       // Hide ffmpeg banner
		"-loglevel", "error", // Only show errors
		"-", // Output to stdout
	)
	if err != nil {
		return nil, err
	}

	c.log.Info("Started camera streaming process (ffmpeg)", "width", c.width, "height", c.height, "fps", fps)
	return stream, nil
}
