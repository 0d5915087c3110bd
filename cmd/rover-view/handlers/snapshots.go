package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rover-view/pkg/camera"
	"github.com/wachiwi/rover-view/pkg/snapshot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/wachiwi/rover-view/cmd/rover-view")

type SnapshotHandler struct {
	Store     *snapshot.Store
	Scheduler *snapshot.Scheduler
}

func (h *SnapshotHandler) List(c *gin.Context) {
	entries, err := h.Store.List()
	if err != nil {
		slog.Error("Failed to list snapshots", "error", err)
		c.String(http.StatusInternalServerError, "Failed to list snapshots")
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *SnapshotHandler) Serve(c *gin.Context) {
	path, err := h.Store.Path(c.Param("name"))
	if err != nil {
		if errors.Is(err, snapshot.ErrUnknownSnapshot) {
			c.String(http.StatusNotFound, "Snapshot not found")
			return
		}
		slog.Error("Failed to resolve snapshot", "error", err)
		c.String(http.StatusInternalServerError, "Failed to read snapshot")
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(path)
}

// Capture takes a snapshot now.
func (h *SnapshotHandler) Capture(c *gin.Context) {
	_, span := tracer.Start(c.Request.Context(), "snapshot.capture")
	defer span.End()

	entry, err := h.Scheduler.Capture()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, camera.ErrNoFrame) || errors.Is(err, camera.ErrStaleFrame) {
			c.String(http.StatusServiceUnavailable, "No frame available: %v", err)
			return
		}
		slog.Error("Failed to capture snapshot", "error", err)
		c.String(http.StatusInternalServerError, "Failed to capture snapshot")
		return
	}
	span.SetAttributes(attribute.String("snapshot.name", entry.Name), attribute.Int("snapshot.size", entry.Size))

	slog.Info("Saved snapshot", "name", entry.Name, "size", entry.Size)
	c.JSON(http.StatusCreated, entry)
}
