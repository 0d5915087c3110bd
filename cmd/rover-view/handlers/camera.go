package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rover-view/pkg/camera"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	viewersGauge metric.Int64UpDownCounter
	partsCounter metric.Int64Counter
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/rover-view/cmd/rover-view")
	viewersGauge, err = meter.Int64UpDownCounter("stream.viewers",
		metric.WithDescription("Open MJPEG stream connections"),
		metric.WithUnit("{connections}"),
	)
	if err != nil {
		slog.Error("Failed to create stream metrics", "error", err)
	}
	partsCounter, err = meter.Int64Counter("stream.parts",
		metric.WithDescription("Frames written to stream viewers"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		slog.Error("Failed to create stream metrics", "error", err)
	}
}

type CameraHandler struct {
	Cam *camera.Camera
}

// Stream re-serves the camera as multipart/x-mixed-replace until the client
// disconnects or the camera stops.
func (h *CameraHandler) Stream(c *gin.Context) {
	if !h.Cam.IsStreaming() {
		c.String(http.StatusServiceUnavailable, "Camera not available")
		return
	}

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}

	stream := h.Cam.Subscribe()
	defer stream.Close()

	ctx := c.Request.Context()
	viewersGauge.Add(ctx, 1)
	defer viewersGauge.Add(ctx, -1)

	c.Header("Content-Type", camera.ContentType)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Status(http.StatusOK)

	// Start with the current frame so the viewer is not blank until the next one.
	if frame, err := h.Cam.GetFrame(); err == nil {
		if err := camera.WritePart(w, frame); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		frame, err := stream.Next(ctx)
		if err != nil {
			return
		}
		if err := camera.WritePart(w, frame); err != nil {
			slog.Debug("Stream viewer went away", "error", err)
			return
		}
		flusher.Flush()
		partsCounter.Add(ctx, 1)
	}
}

// Snapshot serves the latest frame as a single JPEG.
func (h *CameraHandler) Snapshot(c *gin.Context) {
	frame, err := h.Cam.GetFrame()
	if err != nil {
		c.String(http.StatusServiceUnavailable, "No frame available: %v", err)
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (h *CameraHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Cam.Stats())
}

// Health reports whether frames are still arriving.
func (h *CameraHandler) Health(c *gin.Context) {
	if _, err := h.Cam.GetFrame(); err != nil {
		c.String(http.StatusServiceUnavailable, "unhealthy: %v", err)
		return
	}
	c.String(http.StatusOK, "ok")
}
