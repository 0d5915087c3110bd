package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultChunkSize is the read size used by Pump.
const DefaultChunkSize = 4096

// PumpOptions tunes Pump.
type PumpOptions struct {
	ChunkSize int
	Logger    *slog.Logger
}

// Pump reads r in chunks and feeds them to p until r is exhausted or ctx is
// cancelled. Dropped frames and empty reads are logged and do not stop the
// pump.
//
// It returns nil at io.EOF and ctx.Err() on cancellation. Cancellation is
// checked between reads, so a reader that blocks forever must be closed by the
// caller to unblock Pump.
func Pump(ctx context.Context, r io.Reader, p *Parser, opts PumpOptions) error {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	buf := make([]byte, opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 || err == nil {
			if ferr := p.Feed(buf[:n]); ferr != nil {
				if errors.Is(ferr, ErrEmptyChunk) {
					log.Debug("Empty read from stream")
				} else {
					log.Warn("Frame dropped", "error", ferr, "state", p.State())
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}
	}
}
