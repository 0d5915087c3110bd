package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rover-view/pkg/camera"
	"github.com/wachiwi/rover-view/pkg/logger"
	"github.com/wachiwi/rover-view/pkg/snapshot"
	"github.com/wachiwi/rover-view/pkg/telemetry"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "rover-view", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("Failed to setup telemetry", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	cam, err := camera.NewCamera(camera.Config{
		Width:      cfg.Width,
		Height:     cfg.Height,
		FPS:        cfg.FPS,
		Source:     cfg.Source,
		BufferSize: cfg.BufferSize,
		StaleAfter: cfg.StaleAfter,
		Logger:     log,
	})
	if err != nil {
		logger.Fatal("Failed to create camera", "error", err)
	}
	if err := cam.Start(ctx); err != nil {
		logger.Fatal("Failed to start camera", "error", err)
	}
	defer cam.Stop()

	store, err := snapshot.NewStore(cfg.SnapshotDir, cfg.SnapshotRetention)
	if err != nil {
		logger.Fatal("Failed to open snapshot store", "error", err)
	}
	sched, err := snapshot.NewScheduler(store, cam, cfg.SnapshotSchedule, log)
	if err != nil {
		logger.Fatal("Failed to create snapshot scheduler", "error", err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	var accounts gin.Accounts
	if cfg.User != "" {
		accounts = gin.Accounts{cfg.User: cfg.Password}
	} else {
		slog.Warn("ROVER_USER and ROVER_PASSWORD not set, serving without authentication")
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := newRouter(cam, store, sched, accounts, cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("Failed to create router", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Server is running", "addr", cfg.Addr, "source", cfg.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to run server", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	// Open streams only end when the camera closes its subscribers.
	cam.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown server", "error", err)
	}
}
