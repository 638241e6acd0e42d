package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published for every proctoring domain event.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

const (
	eventSource  = "proctoring-service"
	eventVersion = "1.0"
)

// Event types emitted by this service.
const (
	TypeSessionStarted      = "proctoring.session_started"
	TypeSessionTransitioned = "proctoring.session_transitioned"
	TypeViolationRecorded   = "proctoring.violation_recorded"
	TypeSessionFlagged      = "proctoring.session_flagged"
)

// NewEvent builds an envelope with a fresh ID and timestamp.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher delivers events to the persistence/notification
// collaborators. Publishing is fire-and-forget from the session core's
// perspective; a failed publish is logged, never propagated into a state
// transition.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// SessionTransitionedEvent is the payload the durable-storage collaborator
// consumes to record lifecycle changes.
type SessionTransitionedEvent struct {
	SessionID     string    `json:"session_id"`
	StudentID     string    `json:"student_id"`
	AssessmentID  uint      `json:"assessment_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Reason        string    `json:"reason"`
	Actor         string    `json:"actor,omitempty"`
	AutoSubmitted bool      `json:"auto_submitted"`
	At            time.Time `json:"at"`
}

type SessionStartedEvent struct {
	SessionID        string    `json:"session_id"`
	StudentID        string    `json:"student_id"`
	AssessmentID     uint      `json:"assessment_id"`
	StartTime        time.Time `json:"start_time"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
}

type ViolationRecordedEvent struct {
	SessionID    string  `json:"session_id"`
	ViolationID  string  `json:"violation_id"`
	Type         string  `json:"type"`
	Severity     string  `json:"severity"`
	AIConfidence float64 `json:"ai_confidence"`
	WarningCount int     `json:"warning_count"`
	Flagged      bool    `json:"flagged"`
}

type SessionFlaggedEvent struct {
	SessionID string `json:"session_id"`
	Flagged   bool   `json:"flagged"`
	Actor     string `json:"actor"`
}
