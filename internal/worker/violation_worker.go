package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker drains the violation queue into storage. The API handler
// replies as soon as the signal is accepted into the live ledger; this worker
// makes it durable in batches so a write burst from many concurrent exams
// does not stall ingest.
type ViolationWorker struct {
	repo     repositories.Repository
	rdb      *redis.Client
	logger   *slog.Logger
	queueKey string
}

func NewViolationWorker(repo repositories.Repository, rdb *redis.Client, logger *slog.Logger, queueKey string) *ViolationWorker {
	return &ViolationWorker{
		repo:     repo,
		rdb:      rdb,
		logger:   logger.With("component", "violation_worker"),
		queueKey: queueKey,
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.logger.Info("Violation worker started", "queue", w.queueKey)

	buffer := make([]*models.Violation, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for PollTimeout, returns
		// immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.logger.Error("Redis connection error, sleeping 3s", "error", err)
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var violation models.Violation
		if err := json.Unmarshal([]byte(result[1]), &violation); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.logger.Error("Discarding malformed violation payload", "error", err, "data", result[1])
			continue
		}

		buffer = append(buffer, &violation)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*models.Violation) {
	if err := w.repo.Violation().CreateBatch(ctx, nil, batch); err != nil {
		w.logger.Warn("Bulk insert failed, attempting row-by-row recovery",
			"error", err, "count", len(batch))
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*models.Violation) {
	requeueList := make([]*models.Violation, 0)

	for _, v := range batch {
		if err := w.repo.Violation().Create(ctx, nil, v); err != nil {
			w.logger.Error("Insert failed, requeueing",
				"violation_id", v.ID, "session_id", v.SessionID, "error", err)
			requeueList = append(requeueList, v)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*models.Violation) {
	pipe := w.rdb.Pipeline()
	for _, v := range items {
		data, _ := json.Marshal(v)
		pipe.RPush(ctx, w.queueKey, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("Failed to requeue violations, data loss occurred",
			"error", err, "count", len(items))
		return
	}

	w.logger.Info("Requeued failed violations", "count", len(items))
	// Avoid thrashing while the database is down
	time.Sleep(2 * time.Second)
}

func (w *ViolationWorker) shutdown(buffer []*models.Violation) {
	w.logger.Info("Violation worker stopping, flushing remaining buffer", "count", len(buffer))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
