//go:build !darwin && !(linux && arm64)

package camera

import (
	"context"
	"io"
)

// openDevice is a stub for platforms without a supported camera tool.
func (c *Camera) openDevice(ctx context.Context) (io.ReadCloser, error) {
	return nil, ErrDeviceUnavailable
}
