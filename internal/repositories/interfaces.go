package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type SessionFilters struct {
	Status       *models.SessionStatus `json:"status"`
	StudentID    *string               `json:"student_id"`
	AssessmentID *uint                 `json:"assessment_id"`
	Flagged      *bool                 `json:"flagged"`
	DateFrom     *time.Time            `json:"date_from"`
	DateTo       *time.Time            `json:"date_to"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
	SortBy       string                `json:"sort_by"`    // "created_at", "start_time", "status"
	SortOrder    string                `json:"sort_order"` // "asc", "desc"
}

type ViolationFilters struct {
	SessionID    *string                   `json:"session_id"`
	Type         *models.ViolationType     `json:"type"`
	Severity     *models.ViolationSeverity `json:"severity"`
	ReviewStatus *models.ReviewStatus      `json:"review_status"`
	DateFrom     *time.Time                `json:"date_from"`
	DateTo       *time.Time                `json:"date_to"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type SessionStats struct {
	TotalSessions      int                              `json:"total_sessions"`
	ActiveSessions     int                              `json:"active_sessions"`
	FlaggedSessions    int                              `json:"flagged_sessions"`
	TerminatedSessions int                              `json:"terminated_sessions"`
	StatusBreakdown    map[models.SessionStatus]int     `json:"status_breakdown"`
	ViolationsDetected int                              `json:"violations_detected"`
	ViolationsByType   map[models.ViolationType]int     `json:"violations_by_type"`
	ViolationsBySev    map[models.ViolationSeverity]int `json:"violations_by_severity"`
	AverageConfidence  float64                          `json:"average_confidence"`
}

type ViolationCount struct {
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

// ===== REPOSITORY INTERFACES =====

// SessionRepository persists proctoring sessions.
type SessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.ProctoringSession, error)
	GetByIDWithViolations(ctx context.Context, tx *gorm.DB, id string) (*models.ProctoringSession, error)
	Update(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error

	List(ctx context.Context, tx *gorm.DB, filters SessionFilters) ([]*models.ProctoringSession, int64, error)
	GetActive(ctx context.Context, tx *gorm.DB) ([]*models.ProctoringSession, error)
	GetActiveByStudent(ctx context.Context, tx *gorm.DB, studentID string) (*models.ProctoringSession, error)

	GetStats(ctx context.Context, tx *gorm.DB, filters SessionFilters) (*SessionStats, error)
}

// ViolationRepository persists the append-only violation ledger.
type ViolationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, violation *models.Violation) error
	CreateBatch(ctx context.Context, tx *gorm.DB, violations []*models.Violation) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Violation, error)
	UpdateReview(ctx context.Context, tx *gorm.DB, id string, status models.ReviewStatus, reviewerID, notes string) error

	GetBySession(ctx context.Context, tx *gorm.DB, sessionID string) ([]*models.Violation, error)
	List(ctx context.Context, tx *gorm.DB, filters ViolationFilters) ([]*models.Violation, int64, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionIDs []string) ([]ViolationCount, error)
}
