package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rover-view/cmd/rover-view/handlers"
	"github.com/wachiwi/rover-view/pkg/camera"
	"github.com/wachiwi/rover-view/pkg/snapshot"
)

// newRouter wires the HTTP routes. Everything except the health check sits
// behind BasicAuth when accounts is not empty.
func newRouter(cam *camera.Camera, store *snapshot.Store, sched *snapshot.Scheduler, accounts gin.Accounts, trustedProxies []string) (*gin.Engine, error) {
	router := gin.Default()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	cameraHandler := &handlers.CameraHandler{Cam: cam}
	snapshotHandler := &handlers.SnapshotHandler{Store: store, Scheduler: sched}

	// --- Public Routes ---
	router.GET("/healthz", cameraHandler.Health)

	// --- Authenticated Routes ---
	authorized := router.Group("/")
	if len(accounts) > 0 {
		authorized.Use(gin.BasicAuth(accounts))
	}

	authorized.GET("/stream", cameraHandler.Stream)
	authorized.GET("/snapshot.jpg", cameraHandler.Snapshot)
	authorized.GET("/snapshots/:name", snapshotHandler.Serve)

	api := authorized.Group("/api")
	api.GET("/stats", cameraHandler.Stats)
	api.GET("/snapshots", snapshotHandler.List)
	api.POST("/snapshots", snapshotHandler.Capture)

	return router, nil
}
