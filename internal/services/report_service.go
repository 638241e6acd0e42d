package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
)

type reportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewReportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

const (
	summarySheet    = "Summary"
	violationsSheet = "Violations"
)

// SessionAuditReport renders one session's full audit trail as an xlsx
// workbook: a summary sheet with the lifecycle outcome and a violations sheet
// listing the ledger in arrival order.
func (s *reportService) SessionAuditReport(ctx context.Context, sessionID string, userID string) ([]byte, string, error) {
	model, err := s.repo.Session().GetByIDWithViolations(ctx, s.db, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrSessionNotFound
		}
		return nil, "", fmt.Errorf("failed to load session: %w", err)
	}

	if !model.Status.IsTerminal() {
		return nil, "", ErrReportNotReady
	}

	s.logger.Info("Generating session audit report",
		"session_id", sessionID,
		"requested_by", userID)

	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeSummarySheet(f, model); err != nil {
		return nil, "", err
	}
	if err := s.writeViolationsSheet(f, model.Violations); err != nil {
		return nil, "", err
	}

	// Drop the default sheet excelize creates
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("failed to finalize workbook: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("proctoring-audit-%s-%s.xlsx", sessionID, time.Now().Format("20060102"))
	return buf.Bytes(), filename, nil
}

func (s *reportService) writeSummarySheet(f *excelize.File, model *models.ProctoringSession) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	rows := [][2]interface{}{
		{"Session ID", model.ID},
		{"Student ID", model.StudentID},
		{"Student Name", model.Student.FullName},
		{"Assessment ID", model.AssessmentID},
		{"Status", string(model.Status)},
		{"Start Time", model.StartTime.Format(time.RFC3339)},
		{"Time Limit (s)", model.TimeLimitSeconds},
		{"Auto Submitted", model.AutoSubmitted},
		{"Flagged", model.Flagged},
		{"Progress (%)", model.Progress},
		{"Violations", len(model.Violations)},
	}
	if model.EndedAt != nil {
		rows = append(rows, [2]interface{}{"Ended At", model.EndedAt.Format(time.RFC3339)})
	}
	if model.EndReason != nil {
		rows = append(rows, [2]interface{}{"End Reason", *model.EndReason})
	}
	if model.TerminatedBy != nil {
		rows = append(rows, [2]interface{}{"Terminated By", *model.TerminatedBy})
	}
	if model.TerminatedReason != nil {
		rows = append(rows, [2]interface{}{"Terminated Reason", *model.TerminatedReason})
	}
	if model.FlaggedBy != nil {
		rows = append(rows, [2]interface{}{"Flagged By", *model.FlaggedBy})
	}

	for i, row := range rows {
		labelCell := fmt.Sprintf("A%d", i+1)
		valueCell := fmt.Sprintf("B%d", i+1)
		if err := f.SetCellValue(summarySheet, labelCell, row[0]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		if err := f.SetCellValue(summarySheet, valueCell, row[1]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		if err := f.SetCellStyle(summarySheet, labelCell, labelCell, headerStyle); err != nil {
			return fmt.Errorf("failed to style summary: %w", err)
		}
	}

	if err := f.SetColWidth(summarySheet, "A", "A", 22); err != nil {
		return fmt.Errorf("failed to size summary columns: %w", err)
	}
	return f.SetColWidth(summarySheet, "B", "B", 40)
}

func (s *reportService) writeViolationsSheet(f *excelize.File, violations []models.Violation) error {
	if _, err := f.NewSheet(violationsSheet); err != nil {
		return fmt.Errorf("failed to create violations sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	headers := []string{"Seq", "Timestamp", "Type", "Severity", "Description", "AI Confidence", "Review Status", "Reviewed By", "Screenshot", "Audio"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(violationsSheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetCellStyle(violationsSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for i, v := range violations {
		row := i + 2
		values := []interface{}{
			v.Seq,
			v.Timestamp.Format(time.RFC3339),
			string(v.Type),
			string(v.Severity),
			v.Description,
			v.AIConfidence,
			string(v.ReviewStatus),
			derefOrEmpty(v.ReviewedBy),
			derefOrEmpty(v.ScreenshotURL),
			derefOrEmpty(v.AudioURL),
		}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(violationsSheet, cell, value); err != nil {
				return fmt.Errorf("failed to write violation row: %w", err)
			}
		}
	}

	return f.SetColWidth(violationsSheet, "B", "E", 24)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
