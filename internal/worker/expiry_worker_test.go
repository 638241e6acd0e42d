package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/session"
)

type recordingExpiryHandler struct {
	mu    sync.Mutex
	fired []string
}

func (h *recordingExpiryHandler) HandleExpiry(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fired = append(h.fired, sessionID)
	return nil
}

func (h *recordingExpiryHandler) firedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.fired))
	copy(out, h.fired)
	return out
}

func TestExpiryWorker_Sweep(t *testing.T) {
	registry := session.NewRegistry()
	start := time.Now().Add(-time.Hour)

	expired, err := session.New(session.Config{
		ID:               "expired",
		StudentID:        "student-1",
		StartTime:        start,
		TimeLimitSeconds: 60,
		Policy:           session.DefaultFlagPolicy(),
	})
	if err != nil {
		t.Fatal(err)
	}
	running, err := session.New(session.Config{
		ID:               "running",
		StudentID:        "student-2",
		StartTime:        start,
		TimeLimitSeconds: 7200,
		Policy:           session.DefaultFlagPolicy(),
	})
	if err != nil {
		t.Fatal(err)
	}
	registry.Add(expired)
	registry.Add(running)

	handler := &recordingExpiryHandler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewExpiryWorker(registry, handler, logger, time.Second)

	w.sweep(context.Background(), time.Now())

	fired := handler.firedIDs()
	if len(fired) != 1 || fired[0] != "expired" {
		t.Fatalf("expected only the expired session, got %v", fired)
	}

	// A second sweep must not refire the same session
	w.sweep(context.Background(), time.Now())
	if len(handler.firedIDs()) != 1 {
		t.Fatalf("session refired on second sweep: %v", handler.firedIDs())
	}
}
