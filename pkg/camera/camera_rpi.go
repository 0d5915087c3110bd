//go:build linux && arm64

package camera

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// openDevice streams MJPEG from libcamera-apps/rpicam-apps on Raspberry Pi.
// It keeps one rpicam-vid process running instead of restarting the camera
// hardware for every frame.
func (c *Camera) openDevice(ctx context.Context) (io.ReadCloser, error) {
	// Determine command name (rpicam-vid for newer OS, libcamera-vid for older)
	cmdName := "rpicam-vid"
	if _, err := exec.LookPath(cmdName); err != nil {
		cmdName = "libcamera-vid"
		if _, err := exec.LookPath(cmdName); err != nil {
			return nil, fmt.Errorf("%w: neither rpicam-vid nor libcamera-vid found", ErrDeviceUnavailable)
		}
	}

	stream, err := startProcess(ctx, c.log,
		cmdName,
		"--width", fmt.Sprintf("%d", c.width),
		"--height", fmt.Sprintf("%d", c.height),
		"--timeout", "0", // Run indefinitely
		"--nopreview",
		"--codec", "mjpeg", // MJPEG output
		"--flush",
		"--output", "-", // Output to stdout
		"--framerate", fmt.Sprintf("%d", c.fps),
		// Module 3 specific optimizations
		"--awb", "auto",
		"--metering", "average",
	)
	if err != nil {
		return nil, err
	}

	c.log.Info("Started camera streaming process", "command", cmdName, "width", c.width, "height", c.height, "fps", c.fps)
	return stream, nil
}
