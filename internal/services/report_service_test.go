package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

func TestReportService_SessionAuditReport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMockRepository()
	svc := NewReportService(repo, nil, logger)
	ctx := context.Background()

	endedAt := time.Now()
	reason := models.SessionEndReasonTerminate
	actor := "proctor-1"
	repo.session.Create(ctx, nil, &models.ProctoringSession{
		ID:               "sess-report",
		StudentID:        "student-1",
		AssessmentID:     7,
		Status:           models.SessionTerminated,
		StartTime:        endedAt.Add(-30 * time.Minute),
		TimeLimitSeconds: 3600,
		EndedAt:          &endedAt,
		EndReason:        &reason,
		TerminatedBy:     &actor,
		Flagged:          true,
	})

	data, filename, err := svc.SessionAuditReport(ctx, "sess-report", "proctor-1")
	if err != nil {
		t.Fatalf("SessionAuditReport: %v", err)
	}
	if !strings.HasPrefix(filename, "proctoring-audit-sess-report-") || !strings.HasSuffix(filename, ".xlsx") {
		t.Errorf("unexpected filename %q", filename)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("generated workbook unreadable: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	hasSummary, hasViolations := false, false
	for _, sheet := range sheets {
		if sheet == summarySheet {
			hasSummary = true
		}
		if sheet == violationsSheet {
			hasViolations = true
		}
	}
	if !hasSummary || !hasViolations {
		t.Fatalf("expected Summary and Violations sheets, got %v", sheets)
	}

	status, err := f.GetCellValue(summarySheet, "B5")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if status != string(models.SessionTerminated) {
		t.Errorf("expected status %q in summary, got %q", models.SessionTerminated, status)
	}
}

func TestReportService_SessionAuditReport_ActiveSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMockRepository()
	svc := NewReportService(repo, nil, logger)
	ctx := context.Background()

	repo.session.Create(ctx, nil, &models.ProctoringSession{
		ID:               "sess-live",
		StudentID:        "student-1",
		Status:           models.SessionActive,
		StartTime:        time.Now(),
		TimeLimitSeconds: 3600,
	})

	if _, _, err := svc.SessionAuditReport(ctx, "sess-live", "proctor-1"); err != ErrReportNotReady {
		t.Fatalf("expected ErrReportNotReady, got %v", err)
	}

	if _, _, err := svc.SessionAuditReport(ctx, "missing", "proctor-1"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
