package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/wachiwi/rover-view/pkg/logger"
	"github.com/wachiwi/rover-view/pkg/mjpeg"
)

func main() {
	var input, outDir, logLevel string
	var capacity, chunkSize int

	flag.StringVar(&input, "input", "-", `MJPEG stream file, "-" for stdin`)
	flag.StringVar(&outDir, "out", "frames", "Output directory")
	flag.IntVar(&capacity, "buffer-size", mjpeg.DefaultCapacity, "Largest frame in bytes")
	flag.IntVar(&chunkSize, "chunk-size", mjpeg.DefaultChunkSize, "Read size in bytes")
	flag.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flag.Parse()

	log, err := logger.Setup(logLevel, "text")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			logger.Fatal("Failed to open input", "error", err)
		}
		defer f.Close()
		r = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := extract(ctx, r, options{
		OutDir:    outDir,
		Capacity:  capacity,
		ChunkSize: chunkSize,
		Logger:    log,
	})
	if err != nil && ctx.Err() == nil {
		logger.Fatal("Extraction failed", "error", err, "written", res.Written)
	}

	slog.Info("Extraction finished",
		"dir", outDir,
		"written", res.Written,
		"frames", res.Frames,
		"dropped", res.Overflows,
		"bytes", res.Bytes,
	)
}
