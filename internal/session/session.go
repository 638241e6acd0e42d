// Package session implements the proctored-exam session core: the exam
// clock, the violation ledger, and the state machine that governs the
// active -> completed | terminated lifecycle. It performs no I/O; callers
// feed it violation signals, commands, and clock ticks, and it hands back
// snapshots and transition notifications.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// TimeWarningSeconds is the remaining-time threshold below which snapshots
// carry the time warning the monitoring dashboard highlights.
const TimeWarningSeconds = 300

// Transition describes a committed state change, delivered to the persistence
// collaborator. Exactly one terminal transition is ever emitted per session.
type Transition struct {
	SessionID     string
	StudentID     string
	AssessmentID  uint
	From          models.SessionStatus
	To            models.SessionStatus
	Reason        string
	Actor         string
	AutoSubmitted bool
	At            time.Time
}

// TransitionFunc receives committed transitions. It is invoked outside the
// session lock, after the transition is committed, so implementations may
// call back into the session.
type TransitionFunc func(tr Transition)

// Config carries everything a session needs at construction. All fields are
// validated up front; the session never falls back to implicit defaults.
type Config struct {
	ID               string
	StudentID        string
	AssessmentID     uint
	StartTime        time.Time
	TimeLimitSeconds int
	Policy           FlagPolicy
	OnTransition     TransitionFunc
}

// Session is the in-memory state of one proctored attempt. All mutations are
// serialized through a single mutex so that racing triggers (clock expiry vs
// admin terminate vs student submit) commit exactly one terminal transition,
// first writer wins.
type Session struct {
	mu sync.Mutex

	id               string
	studentID        string
	assessmentID     uint
	startTime        time.Time
	timeLimitSeconds int
	policy           FlagPolicy
	onTransition     TransitionFunc

	status        models.SessionStatus
	violations    []models.Violation
	warningCount  int
	flagged       bool
	flaggedBy     string
	progress      int
	autoSubmitted bool
	endedAt       time.Time
	endReason     string
	expiryFired   bool
}

// New validates the config and returns an active session.
func New(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if cfg.TimeLimitSeconds <= 0 {
		return nil, fmt.Errorf("time limit must be positive, got %d", cfg.TimeLimitSeconds)
	}
	if cfg.StartTime.IsZero() {
		return nil, fmt.Errorf("start time is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("flag policy: %w", err)
	}

	return &Session{
		id:               cfg.ID,
		studentID:        cfg.StudentID,
		assessmentID:     cfg.AssessmentID,
		startTime:        cfg.StartTime,
		timeLimitSeconds: cfg.TimeLimitSeconds,
		policy:           cfg.Policy,
		onTransition:     cfg.OnTransition,
		status:           models.SessionActive,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StudentID returns the owning student.
func (s *Session) StudentID() string { return s.studentID }

// Record appends a violation to the ledger and returns the stored entry with
// its arrival-order seq assigned. The ledger is append-only and preserves
// arrival order; entries are never mutated or removed. Violations arriving
// after the session ended are rejected with ErrSessionTerminal.
//
// The returned copy is the caller's own entry even when other recordings race
// this one; callers must not re-read the ledger tail to find it.
//
// Recording may auto-flag the session as a side effect when the policy
// thresholds are crossed. Auto-flagging is one-directional: the ledger never
// unflags, only an explicit admin command does.
func (s *Session) Record(v models.Violation) (models.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return models.Violation{}, ErrSessionTerminal
	}

	v.SessionID = s.id
	v.Seq = len(s.violations)
	s.violations = append(s.violations, v)

	if v.Severity.AtLeast(s.policy.WarningSeverity) {
		s.warningCount++
	}
	if !s.flagged && s.shouldAutoFlagLocked(v) {
		s.flagged = true
		s.flaggedBy = "auto"
	}

	return v, nil
}

func (s *Session) shouldAutoFlagLocked(latest models.Violation) bool {
	if s.policy.FlagOnCritical && latest.Severity == models.SeverityCritical {
		return true
	}
	return s.warningCount >= s.policy.WarningLimit
}

// Submit completes the session by explicit student action.
func (s *Session) Submit(now time.Time) error {
	return s.complete(now, false, "", models.SessionEndReasonSubmitted)
}

// Tick checks the clock and auto-submits the session when the time limit is
// reached. It fires the expiry transition at most once per session, gated on
// a session-local flag rather than exact zero-crossing timing, so callers may
// poll at any frequency. Ticks on a terminal session are inert.
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	if s.status.IsTerminal() || s.expiryFired {
		s.mu.Unlock()
		return false
	}
	if !IsExpired(s.startTime, s.timeLimitSeconds, now) {
		s.mu.Unlock()
		return false
	}

	s.expiryFired = true
	tr := s.transitionLocked(models.SessionCompleted, models.SessionEndReasonTimeout, "", now)
	s.autoSubmitted = true
	tr.AutoSubmitted = true
	cb := s.onTransition
	s.mu.Unlock()

	if cb != nil {
		cb(tr)
	}
	return true
}

// Terminate ends the session by admin command. Actor and reason are required
// for the audit trail; a command missing either is rejected with
// ErrInvalidCommand before any state change.
func (s *Session) Terminate(actor, reason string, now time.Time) error {
	if actor == "" || reason == "" {
		return ErrInvalidCommand
	}

	s.mu.Lock()
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return ErrAlreadyTerminal
	}
	tr := s.transitionLocked(models.SessionTerminated, reason, actor, now)
	cb := s.onTransition
	s.mu.Unlock()

	if cb != nil {
		cb(tr)
	}
	return nil
}

func (s *Session) complete(now time.Time, auto bool, actor, reason string) error {
	s.mu.Lock()
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return ErrAlreadyTerminal
	}
	tr := s.transitionLocked(models.SessionCompleted, reason, actor, now)
	s.autoSubmitted = auto
	tr.AutoSubmitted = auto
	cb := s.onTransition
	s.mu.Unlock()

	if cb != nil {
		cb(tr)
	}
	return nil
}

// transitionLocked commits the single terminal transition. Caller holds the
// lock and has already checked the current status.
func (s *Session) transitionLocked(to models.SessionStatus, reason, actor string, now time.Time) Transition {
	from := s.status
	s.status = to
	s.endedAt = now
	s.endReason = reason
	return Transition{
		SessionID:    s.id,
		StudentID:    s.studentID,
		AssessmentID: s.assessmentID,
		From:         from,
		To:           to,
		Reason:       reason,
		Actor:        actor,
		At:           now,
	}
}

// SetFlag sets or clears the review flag by explicit admin action. This is
// the only mutation permitted after a session reaches a terminal state, so
// that auditors can flag or clear finished sessions.
func (s *Session) SetFlag(flagged bool, actor string) error {
	if actor == "" {
		return ErrInvalidCommand
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagged = flagged
	s.flaggedBy = actor
	return nil
}

// SetProgress records externally supplied answer progress (0-100). Progress
// updates on a finished session are rejected.
func (s *Session) SetProgress(progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.progress = progress
	return nil
}

// History returns the violation ledger in arrival order. The returned slice
// is a copy; the ledger itself stays append-only.
func (s *Session) History() []models.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Violation, len(s.violations))
	copy(out, s.violations)
	return out
}

// Snapshot is the read model handed to the rendering and persistence layers.
type Snapshot struct {
	ID                   string               `json:"id"`
	StudentID            string               `json:"student_id"`
	AssessmentID         uint                 `json:"assessment_id"`
	Status               models.SessionStatus `json:"status"`
	StartTime            time.Time            `json:"start_time"`
	TimeLimitSeconds     int                  `json:"time_limit_seconds"`
	TimeRemainingSeconds int                  `json:"time_remaining_seconds"`
	TimeWarning          bool                 `json:"time_warning"`
	Violations           []models.Violation   `json:"violations"`
	WarningCount         int                  `json:"warning_count"`
	Flagged              bool                 `json:"flagged"`
	FlaggedBy            string               `json:"flagged_by,omitempty"`
	Progress             int                  `json:"progress"`
	AutoSubmitted        bool                 `json:"auto_submitted"`
	EndedAt              *time.Time           `json:"ended_at,omitempty"`
	EndReason            string               `json:"end_reason,omitempty"`
}

// Snapshot derives the current read model. Remaining time is computed from
// the clock inputs on every call; a terminal session reports zero remaining
// only if its clock actually ran out.
func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := Remaining(s.startTime, s.timeLimitSeconds, now)
	snap := Snapshot{
		ID:                   s.id,
		StudentID:            s.studentID,
		AssessmentID:         s.assessmentID,
		Status:               s.status,
		StartTime:            s.startTime,
		TimeLimitSeconds:     s.timeLimitSeconds,
		TimeRemainingSeconds: remaining,
		TimeWarning:          s.status == models.SessionActive && remaining < TimeWarningSeconds,
		Violations:           make([]models.Violation, len(s.violations)),
		WarningCount:         s.warningCount,
		Flagged:              s.flagged,
		FlaggedBy:            s.flaggedBy,
		Progress:             s.progress,
		AutoSubmitted:        s.autoSubmitted,
		EndReason:            s.endReason,
	}
	copy(snap.Violations, s.violations)
	if !s.endedAt.IsZero() {
		endedAt := s.endedAt
		snap.EndedAt = &endedAt
	}
	return snap
}
