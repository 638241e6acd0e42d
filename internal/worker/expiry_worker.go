package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/session"
)

// ExpiryHandler finalizes a session after its clock fired.
type ExpiryHandler interface {
	HandleExpiry(ctx context.Context, sessionID string) error
}

// ExpiryWorker ticks the live-session registry so sessions auto-submit when
// their clock runs out. Each sweep hands the expired clocks to Tick, which is
// idempotent: a session fires at most once no matter how often it is polled,
// and a session that was terminated between sweeps is left alone.
type ExpiryWorker struct {
	registry *session.Registry
	svc      ExpiryHandler
	logger   *slog.Logger
	interval time.Duration
}

func NewExpiryWorker(registry *session.Registry, svc ExpiryHandler, logger *slog.Logger, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Second
	}
	return &ExpiryWorker{
		registry: registry,
		svc:      svc,
		logger:   logger.With("component", "expiry_worker"),
		interval: interval,
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.logger.Info("Expiry worker started", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Expiry worker stopping")
			return
		case now := <-ticker.C:
			w.sweep(ctx, now)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context, now time.Time) {
	fired := w.registry.SweepExpired(now)
	for _, id := range fired {
		if err := w.svc.HandleExpiry(ctx, id); err != nil {
			w.logger.Error("Failed to finalize expired session", "session_id", id, "error", err)
		}
	}
}
