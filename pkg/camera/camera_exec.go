//go:build darwin || (linux && arm64)

package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// processStream is the stdout of a camera tool writing MJPEG. Closing it stops
// the process.
type processStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	name   string
	log    *slog.Logger
}

// startProcess runs name with args and returns its stdout as a stream.
func startProcess(ctx context.Context, log *slog.Logger, name string, args ...string) (*processStream, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w, stderr: %s", name, err, stderr.String())
	}

	return &processStream{
		ReadCloser: stdout,
		cmd:        cmd,
		stderr:     &stderr,
		name:       name,
		log:        log,
	}, nil
}

func (s *processStream) Close() error {
	if err := s.cmd.Process.Signal(syscall.SIGINT); err != nil {
		s.log.Debug("Failed to send interrupt signal", "command", s.name, "error", err)
	}

	// Flush stdout so Wait() can finish
	_, _ = io.Copy(io.Discard, s.ReadCloser)

	err := s.cmd.Wait()
	if err != nil {
		s.log.Warn("Camera streaming process exited", "command", s.name, "error", err, "stderr", s.stderr.String())
	} else {
		s.log.Info("Camera streaming process exited cleanly", "command", s.name)
	}
	return err
}
