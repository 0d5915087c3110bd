package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	Addr           string
	TrustedProxies []string
	User           string
	Password       string

	Source     string
	Width      int
	Height     int
	FPS        int
	BufferSize int
	StaleAfter time.Duration

	SnapshotDir       string
	SnapshotSchedule  string
	SnapshotRetention time.Duration

	LogLevel     string
	LogFormat    string
	OTelEndpoint string
}

// loadConfig parses flags. Every flag falls back to a ROVER_* environment
// variable, then to its default.
func loadConfig(args []string) (config, error) {
	var cfg config
	var proxies string

	fs := flag.NewFlagSet("rover-view", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", envString("ROVER_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&proxies, "trusted-proxies", envString("ROVER_TRUSTED_PROXIES", "127.0.0.1"), "comma separated proxy addresses")
	fs.StringVar(&cfg.Source, "source", envString("ROVER_SOURCE", "device"), `frame source: "device", "pattern", "-" for stdin, or a file path`)
	fs.StringVar(&cfg.SnapshotDir, "snapshot-dir", envString("ROVER_SNAPSHOT_DIR", "./snapshots"), "snapshot directory")
	fs.StringVar(&cfg.SnapshotSchedule, "snapshot-schedule", envString("ROVER_SNAPSHOT_SCHEDULE", "@every 1m"), "cron schedule for snapshots, empty to disable")
	fs.StringVar(&cfg.LogLevel, "log-level", envString("ROVER_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", envString("ROVER_LOG_FORMAT", "text"), "text or json")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", envString("ROVER_OTEL_ENDPOINT", ""), "OTLP gRPC collector host:port, empty to disable")

	var err error
	intFlag := func(p *int, name, env string, def int, usage string) {
		v, perr := envInt(env, def)
		if perr != nil && err == nil {
			err = perr
		}
		fs.IntVar(p, name, v, usage)
	}
	durationFlag := func(p *time.Duration, name, env string, def time.Duration, usage string) {
		v, perr := envDuration(env, def)
		if perr != nil && err == nil {
			err = perr
		}
		fs.DurationVar(p, name, v, usage)
	}
	intFlag(&cfg.Width, "width", "ROVER_WIDTH", 640, "capture width")
	intFlag(&cfg.Height, "height", "ROVER_HEIGHT", 480, "capture height")
	intFlag(&cfg.FPS, "fps", "ROVER_FPS", 30, "capture frame rate")
	intFlag(&cfg.BufferSize, "buffer-size", "ROVER_BUFFER_SIZE", 512*1024, "largest frame in bytes")
	durationFlag(&cfg.StaleAfter, "stale-after", "ROVER_STALE_AFTER", 5*time.Second, "age after which the latest frame is not served")
	durationFlag(&cfg.SnapshotRetention, "snapshot-retention", "ROVER_SNAPSHOT_RETENTION", 24*time.Hour, "how long snapshots are kept, 0 keeps them forever")
	if err != nil {
		return config{}, err
	}

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	// Credentials come from the environment only.
	cfg.User = os.Getenv("ROVER_USER")
	cfg.Password = os.Getenv("ROVER_PASSWORD")
	if (cfg.User == "") != (cfg.Password == "") {
		return config{}, fmt.Errorf("ROVER_USER and ROVER_PASSWORD must be set together")
	}

	for _, p := range strings.Split(proxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.TrustedProxies = append(cfg.TrustedProxies, p)
		}
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
