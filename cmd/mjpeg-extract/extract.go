package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wachiwi/rover-view/pkg/mjpeg"
	"golang.org/x/sync/errgroup"
)

type options struct {
	OutDir    string
	Capacity  int
	ChunkSize int
	// Queue is how many extracted frames may wait for the writer.
	Queue  int
	Logger *slog.Logger
}

type result struct {
	mjpeg.Stats
	Written int
}

// extract parses r and writes every frame to OutDir as frame_000001.jpg,
// frame_000002.jpg, ... Parsing and writing run in separate goroutines; frames
// cross over as pooled buffers.
func extract(ctx context.Context, r io.Reader, opts options) (result, error) {
	if opts.Capacity == 0 {
		opts.Capacity = mjpeg.DefaultCapacity
	}
	if opts.Queue == 0 {
		opts.Queue = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return result{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan *mjpeg.Frame, opts.Queue)
	pool := mjpeg.NewFramePool(opts.Capacity)

	parser, err := mjpeg.NewParser(mjpeg.Config{
		Capacity: opts.Capacity,
		OnFrame: mjpeg.Owned(pool, func(f *mjpeg.Frame) {
			select {
			case frames <- f:
			case <-ctx.Done():
				f.Release()
			}
		}),
	})
	if err != nil {
		return result{}, err
	}

	var written int
	g.Go(func() error {
		defer close(frames)
		return mjpeg.Pump(ctx, r, parser, mjpeg.PumpOptions{
			ChunkSize: opts.ChunkSize,
			Logger:    opts.Logger,
		})
	})
	g.Go(func() error {
		for f := range frames {
			name := filepath.Join(opts.OutDir, fmt.Sprintf("frame_%06d.jpg", f.Seq))
			err := os.WriteFile(name, f.Data, 0644)
			f.Release()
			if err != nil {
				// Drain so the parser side never blocks on a dead writer.
				go func() {
					for f := range frames {
						f.Release()
					}
				}()
				return fmt.Errorf("failed to write frame: %w", err)
			}
			written++
			opts.Logger.Debug("Wrote frame", "file", name)
		}
		return nil
	})

	err = g.Wait()
	return result{Stats: parser.Stats(), Written: written}, err
}
