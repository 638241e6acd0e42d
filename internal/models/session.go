package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
)

// IsTerminal reports whether the status admits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionTerminated
}

const (
	SessionEndReasonSubmitted = "submitted"
	SessionEndReasonTimeout   = "time_out"
	SessionEndReasonTerminate = "terminated_by_admin"
)

type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
	DeviceBlocked  DeviceStatus = "blocked"
)

type ScreenStatus string

const (
	ScreenFullscreen ScreenStatus = "fullscreen"
	ScreenWindowed   ScreenStatus = "windowed"
	ScreenMinimized  ScreenStatus = "minimized"
)

type ProctoringSession struct {
	ID           string        `json:"id" gorm:"primaryKey;size:36"`
	StudentID    string        `json:"student_id" gorm:"not null;index;size:255"`
	AssessmentID uint          `json:"assessment_id" gorm:"not null;index"`
	Status       SessionStatus `json:"status" gorm:"default:active;index"`

	// Timing
	StartTime        time.Time  `json:"start_time" gorm:"not null"`
	TimeLimitSeconds int        `json:"time_limit_seconds" gorm:"not null"`
	EndedAt          *time.Time `json:"ended_at"`
	AutoSubmitted    bool       `json:"auto_submitted"`
	EndReason        *string    `json:"end_reason" gorm:"type:text"`

	// Review
	Flagged      bool    `json:"flagged" gorm:"index"`
	FlaggedBy    *string `json:"flagged_by" gorm:"size:255"`
	Progress     int     `json:"progress"`      // 0-100, supplied by the assessment client
	AIConfidence float64 `json:"ai_confidence"` // session-level score from the monitoring collaborator

	// Termination audit
	TerminatedBy     *string `json:"terminated_by" gorm:"size:255"`
	TerminatedReason *string `json:"terminated_reason" gorm:"type:text"`

	// Client device state, reported by the monitoring collaborator
	CameraStatus     DeviceStatus   `json:"camera_status" gorm:"default:inactive;size:16"`
	MicrophoneStatus DeviceStatus   `json:"microphone_status" gorm:"default:inactive;size:16"`
	ScreenStatus     ScreenStatus   `json:"screen_status" gorm:"default:windowed;size:16"`
	ClientInfo       datatypes.JSON `json:"client_info" gorm:"type:jsonb"` // browser, screen resolution, etc.

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Student    User        `json:"student" gorm:"foreignKey:StudentID"`
	Violations []Violation `json:"violations" gorm:"foreignKey:SessionID"`
}

func (ProctoringSession) TableName() string {
	return "proctoring_sessions"
}
