package camera

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	framesCounter   metric.Int64Counter
	restartsCounter metric.Int64Counter
	frameSize       metric.Int64Histogram
	droppedFrames   metric.Int64ObservableCounter
	streamBytes     metric.Int64ObservableCounter
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/rover-view/pkg/camera")
	framesCounter, err = meter.Int64Counter("camera.frames",
		metric.WithDescription("Total number of JPEG frames extracted from the stream"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		slog.Error("Failed to create frames counter", "error", err)
	}
	restartsCounter, err = meter.Int64Counter("camera.restarts",
		metric.WithDescription("Number of times the camera source was reopened"),
		metric.WithUnit("{restarts}"),
	)
	if err != nil {
		slog.Error("Failed to create restarts counter", "error", err)
	}
	frameSize, err = meter.Int64Histogram("camera.frame.size",
		metric.WithDescription("Size of extracted JPEG frames"),
		metric.WithUnit("By"),
	)
	if err != nil {
		slog.Error("Failed to create frame size histogram", "error", err)
	}
	droppedFrames, err = meter.Int64ObservableCounter("camera.frames.dropped",
		metric.WithDescription("Frames discarded because they exceeded the frame buffer"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		slog.Error("Failed to create dropped frames counter", "error", err)
	}
	streamBytes, err = meter.Int64ObservableCounter("camera.stream.bytes",
		metric.WithDescription("Bytes read from the camera source"),
		metric.WithUnit("By"),
	)
	if err != nil {
		slog.Error("Failed to create stream bytes counter", "error", err)
	}
}

// registerMetrics reports this camera's parser counters on every collection.
func (c *Camera) registerMetrics() (metric.Registration, error) {
	meter := otel.Meter("github.com/wachiwi/rover-view/pkg/camera")
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := c.parser.Stats()
		o.ObserveInt64(droppedFrames, int64(s.Overflows))
		o.ObserveInt64(streamBytes, int64(s.Bytes))
		return nil
	}, droppedFrames, streamBytes)
}
