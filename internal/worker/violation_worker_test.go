package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
)

const testQueueKey = "proctoring:violations:queue"

// stubViolationRepo records inserts and can be told to fail them.
type stubViolationRepo struct {
	mu       sync.Mutex
	stored   []*models.Violation
	failAll  bool
	failBulk bool
}

func (s *stubViolationRepo) Create(ctx context.Context, tx *gorm.DB, v *models.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("database down")
	}
	copied := *v
	s.stored = append(s.stored, &copied)
	return nil
}

func (s *stubViolationRepo) CreateBatch(ctx context.Context, tx *gorm.DB, vs []*models.Violation) error {
	s.mu.Lock()
	failBulk := s.failBulk || s.failAll
	s.mu.Unlock()
	if failBulk {
		return errors.New("bulk insert failed")
	}
	for _, v := range vs {
		if err := s.Create(ctx, tx, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubViolationRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Violation, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubViolationRepo) UpdateReview(ctx context.Context, tx *gorm.DB, id string, status models.ReviewStatus, reviewerID, notes string) error {
	return nil
}

func (s *stubViolationRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID string) ([]*models.Violation, error) {
	return nil, nil
}

func (s *stubViolationRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.ViolationFilters) ([]*models.Violation, int64, error) {
	return nil, 0, nil
}

func (s *stubViolationRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionIDs []string) ([]repositories.ViolationCount, error) {
	return nil, nil
}


func (s *stubViolationRepo) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

type stubRepository struct {
	violation *stubViolationRepo
}

func (s *stubRepository) Session() repositories.SessionRepository     { return nil }
func (s *stubRepository) Violation() repositories.ViolationRepository { return s.violation }
func (s *stubRepository) User() repositories.UserRepository           { return nil }
func (s *stubRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(s)
}
func (s *stubRepository) Ping(ctx context.Context) error { return nil }
func (s *stubRepository) Close() error                   { return nil }

func newTestWorker(t *testing.T) (*ViolationWorker, *stubViolationRepo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := &stubViolationRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewViolationWorker(&stubRepository{violation: repo}, client, logger, testQueueKey)
	return w, repo, client
}

func enqueue(t *testing.T, client *redis.Client, v models.Violation) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := client.RPush(context.Background(), testQueueKey, data).Err(); err != nil {
		t.Fatalf("rpush: %v", err)
	}
}

func TestViolationWorker_DrainsQueue(t *testing.T) {
	w, repo, client := newTestWorker(t)

	for i := 0; i < 3; i++ {
		enqueue(t, client, models.Violation{
			ID:        string(rune('a' + i)),
			SessionID: "sess-1",
			Type:      models.ViolationTabSwitch,
			Severity:  models.SeverityMedium,
			Seq:       i,
			Timestamp: time.Now(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// Give the worker a moment to pull everything into its buffer, then
	// stop it; the shutdown path flushes the buffer.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	if repo.count() != 3 {
		t.Fatalf("expected 3 persisted violations, got %d", repo.count())
	}
}

func TestViolationWorker_DiscardsMalformedPayload(t *testing.T) {
	w, repo, client := newTestWorker(t)

	if err := client.RPush(context.Background(), testQueueKey, "{not json").Err(); err != nil {
		t.Fatalf("rpush: %v", err)
	}
	enqueue(t, client, models.Violation{ID: "v1", SessionID: "sess-1", Type: models.ViolationWindowBlur, Severity: models.SeverityLow})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	if repo.count() != 1 {
		t.Fatalf("expected malformed payload discarded and 1 stored, got %d", repo.count())
	}
}

func TestViolationWorker_FallbackOnBulkFailure(t *testing.T) {
	w, repo, _ := newTestWorker(t)
	repo.failBulk = true

	batch := []*models.Violation{
		{ID: "v1", SessionID: "sess-1", Type: models.ViolationTabSwitch, Severity: models.SeverityLow},
		{ID: "v2", SessionID: "sess-1", Type: models.ViolationTabSwitch, Severity: models.SeverityLow},
	}
	w.flushSafe(context.Background(), batch)

	if repo.count() != 2 {
		t.Fatalf("expected row-by-row fallback to store 2, got %d", repo.count())
	}
}

func TestViolationWorker_RequeuesOnTotalFailure(t *testing.T) {
	w, repo, client := newTestWorker(t)
	repo.failAll = true

	batch := []*models.Violation{
		{ID: "v1", SessionID: "sess-1", Type: models.ViolationTabSwitch, Severity: models.SeverityLow},
	}
	w.flushSafe(context.Background(), batch)

	queued, err := client.LLen(context.Background(), testQueueKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if queued != 1 {
		t.Fatalf("expected 1 requeued violation, got %d", queued)
	}
	if repo.count() != 0 {
		t.Fatalf("nothing should be stored, got %d", repo.count())
	}
}
