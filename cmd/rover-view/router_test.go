package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rover-view/pkg/camera"
	"github.com/wachiwi/rover-view/pkg/snapshot"
)

func newTestRouter(t *testing.T, accounts gin.Accounts) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cam, err := camera.NewCamera(camera.Config{Source: camera.SourcePattern, Logger: log})
	if err != nil {
		t.Fatalf("NewCamera failed: %v", err)
	}
	store, err := snapshot.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	sched, err := snapshot.NewScheduler(store, cam, "", log)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	router, err := newRouter(cam, store, sched, accounts, nil)
	if err != nil {
		t.Fatalf("newRouter failed: %v", err)
	}
	return router
}

func TestRouterBasicAuth(t *testing.T) {
	router := newTestRouter(t, gin.Accounts{"rover": "secret"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/snapshots", nil)
	req.SetBasicAuth("rover", "secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with credentials, got %d", w.Code)
	}

	// Health stays public; no frames yet so it reports unavailable.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from public health check, got %d", w.Code)
	}
}

func TestRouterWithoutAuth(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
