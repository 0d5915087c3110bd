package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wachiwi/rover-view/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var snapshotsCounter metric.Int64Counter

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/rover-view/pkg/snapshot")
	snapshotsCounter, err = meter.Int64Counter("snapshot.captures",
		metric.WithDescription("Scheduled and manual snapshot attempts"),
		metric.WithUnit("{snapshots}"),
	)
	if err != nil {
		slog.Error("Failed to create snapshot metrics", "error", err)
	}
}

// FrameSource provides the frame to snapshot. *camera.Camera implements it.
type FrameSource interface {
	GetFrame() ([]byte, error)
}

// Scheduler saves the source's latest frame on a cron schedule.
type Scheduler struct {
	store  *Store
	source FrameSource
	cron   *cron.Cron
	log    *slog.Logger
}

// NewScheduler parses schedule (standard cron syntax or descriptors such as
// "@every 30s") and prepares, but does not start, the schedule. An empty schedule
// schedules nothing; Capture still works.
func NewScheduler(store *Store, source FrameSource, schedule string, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	cronLog := &logger.CronLogger{Logger: log}

	s := &Scheduler{
		store:  store,
		source: source,
		log:    log,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.SkipIfStillRunning(cronLog)),
		),
	}
	if schedule == "" {
		return s, nil
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running
// capture has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Capture saves the current frame immediately.
func (s *Scheduler) Capture() (Entry, error) {
	frame, err := s.source.GetFrame()
	if err != nil {
		snapshotsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "no_frame")))
		return Entry{}, fmt.Errorf("no frame to snapshot: %w", err)
	}

	entry, err := s.store.Save(frame, time.Now())
	if err != nil {
		snapshotsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "error")))
		return Entry{}, err
	}
	snapshotsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "saved")))
	return entry, nil
}

func (s *Scheduler) run() {
	entry, err := s.Capture()
	if err != nil {
		s.log.Warn("Scheduled snapshot skipped", "error", err)
		return
	}
	s.log.Info("Saved snapshot", "name", entry.Name, "size", entry.Size)
}
