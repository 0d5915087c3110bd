package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rover-view/pkg/camera"
	"github.com/wachiwi/rover-view/pkg/snapshot"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testFrame  = []byte{0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9}
)

func init() {
	gin.SetMode(gin.TestMode)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fileCamera plays a one-frame stream file and waits until it is extracted.
func fileCamera(t *testing.T) *camera.Camera {
	t.Helper()
	var buf bytes.Buffer
	if err := camera.WritePart(&buf, testFrame); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "stream.mjpeg")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	cam, err := camera.NewCamera(camera.Config{Source: path, Logger: testLogger})
	if err != nil {
		t.Fatalf("NewCamera failed: %v", err)
	}
	if err := cam.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(cam.Stop)
	waitFor(t, "frame", func() bool {
		_, err := cam.GetFrame()
		return err == nil
	})
	return cam
}

func newEngine(cam *camera.Camera, store *snapshot.Store, sched *snapshot.Scheduler) *gin.Engine {
	router := gin.New()
	ch := &CameraHandler{Cam: cam}
	sh := &SnapshotHandler{Store: store, Scheduler: sched}
	router.GET("/stream", ch.Stream)
	router.GET("/snapshot.jpg", ch.Snapshot)
	router.GET("/healthz", ch.Health)
	router.GET("/api/stats", ch.Stats)
	router.GET("/api/snapshots", sh.List)
	router.POST("/api/snapshots", sh.Capture)
	router.GET("/snapshots/:name", sh.Serve)
	return router
}

func newSnapshotDeps(t *testing.T, cam *camera.Camera) (*snapshot.Store, *snapshot.Scheduler) {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	sched, err := snapshot.NewScheduler(store, cam, "", testLogger)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	return store, sched
}

func TestSnapshotServesLatestFrame(t *testing.T) {
	cam := fileCamera(t)
	router := newEngine(cam, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), testFrame) {
		t.Errorf("Expected % X, got % X", testFrame, w.Body.Bytes())
	}
}

func TestSnapshotWithoutFrame(t *testing.T) {
	cam, err := camera.NewCamera(camera.Config{Source: camera.SourcePattern, Logger: testLogger})
	if err != nil {
		t.Fatalf("NewCamera failed: %v", err)
	}
	router := newEngine(cam, nil, nil)

	for _, path := range []string{"/snapshot.jpg", "/healthz"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestStreamUnavailableWhenStopped(t *testing.T) {
	cam, err := camera.NewCamera(camera.Config{Source: camera.SourcePattern, Logger: testLogger})
	if err != nil {
		t.Fatalf("NewCamera failed: %v", err)
	}
	router := newEngine(cam, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestStreamWritesMultipartFrames(t *testing.T) {
	cam, err := camera.NewCamera(camera.Config{
		Source: camera.SourcePattern,
		Width:  16,
		Height: 8,
		FPS:    50,
		Logger: testLogger,
	})
	if err != nil {
		t.Fatalf("NewCamera failed: %v", err)
	}
	if err := cam.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer cam.Stop()

	server := httptest.NewServer(newEngine(cam, nil, nil))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("Bad content type: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] != camera.Boundary {
		t.Fatalf("Unexpected content type %q %v", mediaType, params)
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 3; i++ {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("Part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Part %d: expected image/jpeg, got %s", i, ct)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("Part %d: %v", i, err)
		}
		if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 || data[len(data)-2] != 0xFF || data[len(data)-1] != 0xD9 {
			t.Errorf("Part %d is not a complete JPEG (%d bytes)", i, len(data))
		}
	}

	cancel()
	waitFor(t, "viewer to unsubscribe", func() bool { return cam.Stats().Subscribers == 0 })
}

func TestStats(t *testing.T) {
	cam := fileCamera(t)
	router := newEngine(cam, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var stats camera.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Frames != 1 {
		t.Errorf("Expected 1 frame, got %d", stats.Frames)
	}
	if stats.Source == "" {
		t.Error("Expected source in stats")
	}
}

func TestSnapshotCaptureListServe(t *testing.T) {
	cam := fileCamera(t)
	store, sched := newSnapshotDeps(t, cam)
	router := newEngine(cam, store, sched)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/snapshots", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var entry snapshot.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode entry: %v", err)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	var entries []snapshot.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != entry.Name {
		t.Fatalf("Expected [%s], got %v", entry.Name, entries)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshots/"+entry.Name, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), testFrame) {
		t.Errorf("Expected % X, got % X", testFrame, w.Body.Bytes())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshots/index.json", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for index file, got %d", w.Code)
	}
}

func TestSnapshotCaptureWithoutFrame(t *testing.T) {
	cam, err := camera.NewCamera(camera.Config{Source: camera.SourcePattern, Logger: testLogger})
	if err != nil {
		t.Fatalf("NewCamera failed: %v", err)
	}
	store, sched := newSnapshotDeps(t, cam)
	router := newEngine(cam, store, sched)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/snapshots", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
