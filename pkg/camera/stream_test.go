package camera

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"testing"
	"time"
)

func TestHubDropsOldestForSlowSubscriber(t *testing.T) {
	h := newHub()
	s := h.subscribe()
	defer s.Close()

	for i := byte(1); i <= 5; i++ {
		h.broadcast([]byte{i})
	}

	ctx := context.Background()
	a, _ := s.Next(ctx)
	b, _ := s.Next(ctx)
	if a[0] != 4 || b[0] != 5 {
		t.Errorf("Expected the two newest frames 4, 5, got %d, %d", a[0], b[0])
	}
}

func TestHubSubscribeAfterCloseAll(t *testing.T) {
	h := newHub()
	h.closeAll()

	s := h.subscribe()
	defer s.Close()
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
	if h.count() != 0 {
		t.Errorf("Expected closed hub to keep no subscribers, got %d", h.count())
	}

	h.open()
	live := h.subscribe()
	defer live.Close()
	h.broadcast([]byte{7})
	frame, err := live.Next(context.Background())
	if err != nil || frame[0] != 7 {
		t.Errorf("Expected frame 7 after reopen, got %v, %v", frame, err)
	}
}

func TestStreamClose(t *testing.T) {
	h := newHub()
	s := h.subscribe()

	s.Close()
	s.Close()

	if _, err := s.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if h.count() != 0 {
		t.Errorf("Expected subscriber to be removed, got %d", h.count())
	}
	h.broadcast([]byte{1})
}

func TestStreamNextHonoursContext(t *testing.T) {
	h := newHub()
	s := h.subscribe()
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestWritePartIsValidMultipart(t *testing.T) {
	frames := [][]byte{
		{0xFF, 0xD8, 0x01, 0xFF, 0xD9},
		{0xFF, 0xD8, 0x02, 0xFF, 0xD9},
	}
	var buf bytes.Buffer
	for _, f := range frames {
		if err := WritePart(&buf, f); err != nil {
			t.Fatal(err)
		}
	}
	buf.WriteString("--" + Boundary + "--\r\n")

	r := multipart.NewReader(&buf, Boundary)
	for i, want := range frames {
		part, err := r.NextPart()
		if err != nil {
			t.Fatalf("Part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Expected image/jpeg, got %s", ct)
		}
		var got bytes.Buffer
		if _, err := got.ReadFrom(part); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got.Bytes(), want) {
			t.Errorf("Part %d: expected % X, got % X", i, want, got.Bytes())
		}
	}
}
