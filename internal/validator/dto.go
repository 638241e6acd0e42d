package validator

import (
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// StartSessionRequest opens a proctored session for an assessment attempt.
type StartSessionRequest struct {
	StudentID        string         `json:"student_id" validate:"required"`
	AssessmentID     uint           `json:"assessment_id" validate:"required"`
	TimeLimitSeconds int            `json:"time_limit_seconds" validate:"required,min=1,max=86400"`
	ClientInfo       map[string]any `json:"client_info,omitempty"`
}

// ViolationSignalRequest is one monitoring signal reported for a session.
type ViolationSignalRequest struct {
	Type          models.ViolationType     `json:"type" validate:"required,violation_type"`
	Severity      models.ViolationSeverity `json:"severity" validate:"required,severity"`
	Description   string                   `json:"description" validate:"omitempty,max=1000"`
	AIConfidence  *float64                 `json:"ai_confidence,omitempty" validate:"omitempty,min=0,max=1"`
	Timestamp     *time.Time               `json:"timestamp,omitempty"`
	Data          map[string]any           `json:"data,omitempty"`
	ScreenshotURL string                   `json:"screenshot_url,omitempty" validate:"omitempty,url,max=2048"`
	AudioURL      string                   `json:"audio_url,omitempty" validate:"omitempty,url,max=2048"`
}

// TerminateSessionRequest ends a session by proctor or admin decision.
// Actor comes from the auth context, the reason must be supplied explicitly.
type TerminateSessionRequest struct {
	Reason string `json:"reason" validate:"required,terminate_reason"`
}

// FlagSessionRequest toggles the review flag on a session.
type FlagSessionRequest struct {
	Flagged bool `json:"flagged"`
}

// ProgressUpdateRequest reports answered-question progress from the exam client.
type ProgressUpdateRequest struct {
	Progress int `json:"progress" validate:"min=0,max=100"`
}

// DeviceStatusRequest updates the reported camera/microphone/screen state.
type DeviceStatusRequest struct {
	CameraStatus     models.DeviceStatus `json:"camera_status,omitempty"`
	MicrophoneStatus models.DeviceStatus `json:"microphone_status,omitempty"`
	ScreenStatus     models.ScreenStatus `json:"screen_status,omitempty"`
}

// ReviewViolationRequest records a proctor's verdict on one violation.
type ReviewViolationRequest struct {
	Status models.ReviewStatus `json:"status" validate:"required,oneof=reviewed dismissed"`
	Notes  string              `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// SessionListRequest filters the session list endpoints.
type SessionListRequest struct {
	Status       models.SessionStatus `form:"status" validate:"omitempty,session_status"`
	StudentID    string               `form:"student_id"`
	AssessmentID uint                 `form:"assessment_id"`
	FlaggedOnly  bool                 `form:"flagged_only"`
	Page         int                  `form:"page" validate:"omitempty,min=1"`
	PageSize     int                  `form:"page_size" validate:"omitempty,min=1,max=200"`
}

// Normalize applies list defaults.
func (r *SessionListRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
}
