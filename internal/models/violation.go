package models

import (
	"time"

	"gorm.io/datatypes"
)

type ViolationType string

const (
	ViolationFaceNotVisible     ViolationType = "face_not_visible"
	ViolationMultipleFaces      ViolationType = "multiple_faces"
	ViolationTabSwitch          ViolationType = "tab_switch"
	ViolationWindowBlur         ViolationType = "window_blur"
	ViolationSuspiciousMovement ViolationType = "suspicious_movement"
	ViolationAudioAnomaly       ViolationType = "audio_anomaly"
	ViolationScreenShare        ViolationType = "screen_share_detected"
)

type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// severityRank orders severities low < medium < high < critical.
var severityRank = map[ViolationSeverity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at or above the given severity.
func (s ViolationSeverity) AtLeast(min ViolationSeverity) bool {
	return severityRank[s] >= severityRank[min]
}

// Valid reports whether the severity is one of the known buckets.
func (s ViolationSeverity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewReviewed  ReviewStatus = "reviewed"
	ReviewDismissed ReviewStatus = "dismissed"
)

type Violation struct {
	ID        string            `json:"id" gorm:"primaryKey;size:36"`
	SessionID string            `json:"session_id" gorm:"not null;index;size:36"`
	Type      ViolationType     `json:"type" gorm:"not null;index;size:32"`
	Severity  ViolationSeverity `json:"severity" gorm:"not null;size:16"`

	// Seq preserves arrival order within a session for audit; timestamps from
	// the signal source are monotonic but may collide at second resolution.
	Seq       int       `json:"seq" gorm:"not null;index:idx_session_seq"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`

	Description  string         `json:"description" gorm:"type:text"`
	AIConfidence float64        `json:"ai_confidence"` // [0,1], informational only
	Data         datatypes.JSON `json:"data" gorm:"type:jsonb"`

	// Evidence
	ScreenshotURL *string `json:"screenshot_url"`
	AudioURL      *string `json:"audio_url"`

	// Review status
	ReviewStatus ReviewStatus `json:"review_status" gorm:"default:pending;size:16"`
	ReviewedBy   *string      `json:"reviewed_by" gorm:"size:255"`
	ReviewedAt   *time.Time   `json:"reviewed_at"`
	ReviewNotes  *string      `json:"review_notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Session ProctoringSession `json:"-" gorm:"foreignKey:SessionID"`
}

func (Violation) TableName() string {
	return "proctoring_violations"
}
