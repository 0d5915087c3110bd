package camera

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Boundary separates parts in the multipart/x-mixed-replace streams written by
// WritePart.
const Boundary = "frame"

// ContentType is the HTTP content type for a stream of WritePart parts.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// WritePart writes one JPEG frame as a multipart/x-mixed-replace part.
func WritePart(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// newPatternSource streams placeholder JPEGs wrapped in multipart parts, the
// same shape an MJPEG camera server sends, at the given frame rate.
func newPatternSource(ctx context.Context, width, height, fps int) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-ticker.C:
				frame, err := generatePlaceholderFrame(width, height)
				if err != nil {
					pw.CloseWithError(err)
					return
				}
				if err := WritePart(pw, frame); err != nil {
					// Reader side closed.
					return
				}
			}
		}
	}()

	return pr
}
