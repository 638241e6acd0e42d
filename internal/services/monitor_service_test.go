package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/session"
)

func newTestMonitor(t *testing.T) (*monitorService, *mockRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMockRepository()
	svc := NewMonitorService(repo, nil, logger, session.NewRegistry())
	return svc.(*monitorService), repo
}

func TestMonitorService_Overview(t *testing.T) {
	svc, repo := newTestMonitor(t)
	repo.session.stats = &repositories.SessionStats{
		TotalSessions:      10,
		ActiveSessions:     3,
		FlaggedSessions:    2,
		TerminatedSessions: 1,
		ViolationsDetected: 17,
		AverageConfidence:  0.82,
		ViolationsByType: map[models.ViolationType]int{
			models.ViolationTabSwitch: 9,
		},
	}

	overview, err := svc.Overview(context.Background(), "proctor-1")
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if overview.TotalSessions != 10 || overview.ActiveSessions != 3 {
		t.Errorf("session counts wrong: %+v", overview)
	}
	if overview.ViolationsDetected != 17 {
		t.Errorf("expected 17 violations, got %d", overview.ViolationsDetected)
	}
	if overview.AverageConfidence != 0.82 {
		t.Errorf("expected confidence 0.82, got %f", overview.AverageConfidence)
	}
	if overview.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestMonitorService_Overview_RequiresStaff(t *testing.T) {
	svc, _ := newTestMonitor(t)

	_, err := svc.Overview(context.Background(), "student-1")
	var perr *PermissionError
	if !asPermissionError(err, &perr) {
		t.Fatalf("expected PermissionError for student, got %v", err)
	}
}

func TestMonitorService_ActiveSessions(t *testing.T) {
	svc, repo := newTestMonitor(t)
	ctx := context.Background()

	now := time.Now()
	repo.session.Create(ctx, nil, &models.ProctoringSession{
		ID:               "sess-1",
		StudentID:        "student-1",
		AssessmentID:     1,
		Status:           models.SessionActive,
		StartTime:        now.Add(-time.Hour + 4*time.Minute),
		TimeLimitSeconds: 3600,
	})
	repo.session.Create(ctx, nil, &models.ProctoringSession{
		ID:        "sess-2",
		StudentID: "student-2",
		Status:    models.SessionCompleted,
		StartTime: now.Add(-2 * time.Hour),
	})

	active, err := svc.ActiveSessions(ctx, "proctor-1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}
	if active[0].ID != "sess-1" {
		t.Errorf("wrong session: %s", active[0].ID)
	}
	// Four minutes left is inside the warning window
	if !active[0].TimeWarning {
		t.Error("expected time warning for session near expiry")
	}
	// Names come from the identity provider, not the session row
	if active[0].StudentName != "Test User" {
		t.Errorf("student name not resolved: %q", active[0].StudentName)
	}
}

func TestMonitorService_FlaggedSessions_CountsViolations(t *testing.T) {
	svc, repo := newTestMonitor(t)
	ctx := context.Background()

	repo.session.Create(ctx, nil, &models.ProctoringSession{
		ID:        "sess-1",
		StudentID: "student-1",
		Status:    models.SessionTerminated,
		Flagged:   true,
	})
	for i := 0; i < 3; i++ {
		repo.violation.Create(ctx, nil, &models.Violation{
			ID:        string(rune('a' + i)),
			SessionID: "sess-1",
			Type:      models.ViolationTabSwitch,
			Severity:  models.SeverityMedium,
			Seq:       i,
		})
	}

	resp, err := svc.FlaggedSessions(ctx, repositories.SessionFilters{}, "proctor-1")
	if err != nil {
		t.Fatalf("FlaggedSessions: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("expected 1 flagged session, got %d", len(resp.Sessions))
	}
	// Flagged listings do not preload the ledger; the count is queried
	if resp.Sessions[0].ViolationCount != 3 {
		t.Errorf("violation count = %d, want 3", resp.Sessions[0].ViolationCount)
	}
}

func TestMonitorService_RoleCheckFailsClosed(t *testing.T) {
	svc, repo := newTestMonitor(t)
	repo.user.roleErr = errors.New("identity provider unavailable")

	if _, err := svc.Overview(context.Background(), "proctor-1"); err == nil {
		t.Error("Overview succeeded while roles could not be verified")
	}
	if _, err := svc.ActiveSessions(context.Background(), "proctor-1"); err == nil {
		t.Error("ActiveSessions succeeded while roles could not be verified")
	}
}
