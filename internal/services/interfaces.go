package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/session"
	"github.com/SAP-F-2025/proctoring-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type StartSessionRequest = validator.StartSessionRequest
type ViolationSignalRequest = validator.ViolationSignalRequest
type TerminateSessionRequest = validator.TerminateSessionRequest
type FlagSessionRequest = validator.FlagSessionRequest
type ProgressUpdateRequest = validator.ProgressUpdateRequest
type DeviceStatusRequest = validator.DeviceStatusRequest
type ReviewViolationRequest = validator.ReviewViolationRequest
type SessionListRequest = validator.SessionListRequest

type SessionResponse struct {
	*models.ProctoringSession
	StudentName          string `json:"student_name,omitempty"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds"`
	TimeWarning          bool   `json:"time_warning"`
	ViolationCount       int    `json:"violation_count"`
	WarningCount         int    `json:"warning_count"`
}

type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// MonitorOverview is the analytics card rendered on the proctor dashboard.
type MonitorOverview struct {
	TotalSessions      int                              `json:"total_sessions"`
	ActiveSessions     int                              `json:"active_sessions"`
	ViolationsDetected int                              `json:"violations_detected"`
	AverageConfidence  float64                          `json:"average_confidence"`
	FlaggedSessions    int                              `json:"flagged_sessions"`
	TerminatedSessions int                              `json:"terminated_sessions"`
	ViolationsByType   map[models.ViolationType]int     `json:"violations_by_type"`
	ViolationsBySev    map[models.ViolationSeverity]int `json:"violations_by_severity"`
	GeneratedAt        time.Time                        `json:"generated_at"`
}

// ===== SERVICE INTERFACES =====

// ProctoringService owns the session lifecycle: start, violation ingest,
// submit, expiry, termination, flagging, and progress tracking.
type ProctoringService interface {
	// Lifecycle
	Start(ctx context.Context, req *StartSessionRequest, actorID string) (*SessionResponse, error)
	Submit(ctx context.Context, sessionID, studentID string) (*SessionResponse, error)
	Terminate(ctx context.Context, sessionID string, req *TerminateSessionRequest, actorID string) (*SessionResponse, error)
	HandleExpiry(ctx context.Context, sessionID string) error

	// Violation ledger
	IngestViolation(ctx context.Context, sessionID string, req *ViolationSignalRequest) (*models.Violation, error)
	GetViolations(ctx context.Context, sessionID string, userID string) ([]*models.Violation, error)
	ReviewViolation(ctx context.Context, violationID string, req *ReviewViolationRequest, reviewerID string) error

	// Review and progress
	SetFlag(ctx context.Context, sessionID string, flagged bool, actorID string) (*SessionResponse, error)
	SetProgress(ctx context.Context, sessionID string, progress int, studentID string) error
	UpdateDeviceStatus(ctx context.Context, sessionID string, req *DeviceStatusRequest, studentID string) error

	// Read operations
	GetByID(ctx context.Context, sessionID string, userID string) (*SessionResponse, error)
	List(ctx context.Context, req *SessionListRequest, userID string) (*SessionListResponse, error)
	TimeRemaining(ctx context.Context, sessionID string) (int, error)

	// Rehydrate reloads active sessions from storage into the live registry,
	// called once at startup so the expiry sweeper sees sessions that were
	// live before a restart.
	Rehydrate(ctx context.Context) (int, error)
}

// MonitorService serves the proctor dashboard read models.
type MonitorService interface {
	Overview(ctx context.Context, userID string) (*MonitorOverview, error)
	ActiveSessions(ctx context.Context, userID string) ([]*SessionResponse, error)
	FlaggedSessions(ctx context.Context, filters repositories.SessionFilters, userID string) (*SessionListResponse, error)
}

// ReportService produces downloadable audit artifacts.
type ReportService interface {
	// SessionAuditReport renders the full session audit trail as an xlsx
	// workbook and returns the file bytes with a suggested filename.
	SessionAuditReport(ctx context.Context, sessionID string, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Proctoring() ProctoringService
	Monitor() MonitorService
	Report() ReportService

	// Registry exposes the live-session registry for the expiry sweeper
	Registry() *session.Registry

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
