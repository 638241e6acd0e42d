package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/events"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/session"
)

// persistTimeout bounds the background writes triggered by transition hooks.
const persistTimeout = 10 * time.Second

// newLiveSession builds the in-memory state machine for a stored session and
// wires its transition hook to persistence and event publishing.
func (s *proctoringService) newLiveSession(model *models.ProctoringSession) (*session.Session, error) {
	live, err := session.New(session.Config{
		ID:               model.ID,
		StudentID:        model.StudentID,
		AssessmentID:     model.AssessmentID,
		StartTime:        model.StartTime,
		TimeLimitSeconds: model.TimeLimitSeconds,
		Policy:           s.policy,
		OnTransition:     s.onTransition,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build live session: %w", err)
	}
	return live, nil
}

// rehydrateOne rebuilds a live session from storage, replaying the persisted
// ledger in arrival order so warning counts and auto-flag state match.
func (s *proctoringService) rehydrateOne(ctx context.Context, model *models.ProctoringSession) (*session.Session, error) {
	live, err := s.newLiveSession(model)
	if err != nil {
		return nil, err
	}

	violations, err := s.repo.Violation().GetBySession(ctx, s.db, model.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	for _, v := range violations {
		if _, err := live.Record(*v); err != nil {
			return nil, fmt.Errorf("failed to replay violation %s: %w", v.ID, err)
		}
	}

	if model.Progress > 0 {
		_ = live.SetProgress(model.Progress)
	}
	// An explicit flag from before the restart wins over the replayed auto-flag
	if model.Flagged && model.FlaggedBy != nil {
		_ = live.SetFlag(true, *model.FlaggedBy)
	}

	return live, nil
}

// liveSession returns the registry entry for an active session, rehydrating
// from storage when needed. A nil session with nil error means the session
// exists but already ended.
func (s *proctoringService) liveSession(ctx context.Context, sessionID string) (*session.Session, *models.ProctoringSession, error) {
	if live, err := s.registry.Get(sessionID); err == nil {
		return live, nil, nil
	}

	model, err := s.getModel(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if model.Status.IsTerminal() {
		return nil, model, nil
	}

	live, err := s.rehydrateOne(ctx, model)
	if err != nil {
		return nil, nil, err
	}
	s.registry.Add(live)
	return live, model, nil
}

func (s *proctoringService) getModel(ctx context.Context, sessionID string) (*models.ProctoringSession, error) {
	model, err := s.repo.Session().GetByID(ctx, s.db, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return model, nil
}

// onTransition persists the terminal state committed by the state machine and
// publishes the lifecycle event. It runs outside the session lock and outside
// any request context, so it uses its own deadline.
func (s *proctoringService) onTransition(tr session.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	updates := map[string]interface{}{
		"status":         tr.To,
		"ended_at":       tr.At,
		"end_reason":     tr.Reason,
		"auto_submitted": tr.AutoSubmitted,
	}
	if tr.To == models.SessionTerminated {
		updates["terminated_by"] = tr.Actor
		updates["terminated_reason"] = tr.Reason
	}

	if err := s.repo.Session().UpdateFields(ctx, nil, tr.SessionID, updates); err != nil {
		s.logger.Error("Failed to persist session transition",
			"session_id", tr.SessionID,
			"to", tr.To,
			"error", err)
	}

	s.publishEvent(ctx, events.NewEvent(events.TypeSessionTransitioned, events.SessionTransitionedEvent{
		SessionID:     tr.SessionID,
		StudentID:     tr.StudentID,
		AssessmentID:  tr.AssessmentID,
		From:          string(tr.From),
		To:            string(tr.To),
		Reason:        tr.Reason,
		Actor:         tr.Actor,
		AutoSubmitted: tr.AutoSubmitted,
		At:            tr.At,
	}))
}

func (s *proctoringService) persistFlag(ctx context.Context, sessionID string, flagged bool, actor string) {
	if err := s.repo.Session().UpdateFields(ctx, nil, sessionID, map[string]interface{}{
		"flagged":    flagged,
		"flagged_by": actor,
	}); err != nil {
		s.logger.Error("Failed to persist session flag",
			"session_id", sessionID,
			"flagged", flagged,
			"error", err)
	}
}

// enqueueViolation hands the ledger entry to the persistence worker through
// the Redis queue. Without Redis it writes straight to storage.
func (s *proctoringService) enqueueViolation(ctx context.Context, v *models.Violation) {
	if s.redis == nil || s.queueKey == "" {
		if err := s.repo.Violation().Create(ctx, nil, v); err != nil {
			s.logger.Error("Failed to persist violation", "violation_id", v.ID, "error", err)
		}
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode violation for queue", "violation_id", v.ID, "error", err)
		return
	}
	if err := s.redis.RPush(ctx, s.queueKey, payload).Err(); err != nil {
		s.logger.Error("Failed to enqueue violation, writing directly",
			"violation_id", v.ID, "error", err)
		if err := s.repo.Violation().Create(ctx, nil, v); err != nil {
			s.logger.Error("Failed to persist violation", "violation_id", v.ID, "error", err)
		}
	}
}

func (s *proctoringService) publishEvent(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", "event_type", event.Type, "error", err)
	}
}

// checkAccess allows the owning student and any staff role to read a session.
func (s *proctoringService) checkAccess(ctx context.Context, model *models.ProctoringSession, userID, action string) error {
	if userID == "" || model.StudentID == userID {
		return nil
	}

	for _, role := range []models.UserRole{models.RoleProctor, models.RoleTeacher, models.RoleAdmin} {
		ok, err := s.repo.User().HasRole(ctx, userID, role)
		if err != nil {
			// Non-owner reads fail closed when roles cannot be verified;
			// the student's own exam flow never reaches this check.
			s.logger.Warn("Could not verify role", "user_id", userID, "error", err)
			return fmt.Errorf("failed to verify role for %s: %w", userID, err)
		}
		if ok {
			return nil
		}
	}

	return NewPermissionError(userID, "session", model.ID, action, "not owner and no staff role")
}

func (s *proctoringService) toResponse(model *models.ProctoringSession, snap *session.Snapshot) *SessionResponse {
	resp := &SessionResponse{
		ProctoringSession: model,
		StudentName:       model.Student.FullName,
	}

	if snap != nil {
		resp.TimeRemainingSeconds = snap.TimeRemainingSeconds
		resp.TimeWarning = snap.TimeWarning
		resp.ViolationCount = len(snap.Violations)
		resp.WarningCount = snap.WarningCount
		resp.Flagged = snap.Flagged
		resp.Progress = snap.Progress
		return resp
	}

	if !model.Status.IsTerminal() {
		remaining := session.Remaining(model.StartTime, model.TimeLimitSeconds, time.Now())
		resp.TimeRemainingSeconds = remaining
		resp.TimeWarning = remaining < session.TimeWarningSeconds
	}
	resp.ViolationCount = len(model.Violations)
	return resp
}

func (s *proctoringService) toResponses(ctx context.Context, sessions []*models.ProctoringSession) []*SessionResponse {
	out := make([]*SessionResponse, 0, len(sessions))
	var storedIDs []string
	for _, model := range sessions {
		var snap *session.Snapshot
		if live, err := s.registry.Get(model.ID); err == nil {
			sSnap := live.Snapshot(time.Now())
			snap = &sSnap
		} else {
			storedIDs = append(storedIDs, model.ID)
		}
		out = append(out, s.toResponse(model, snap))
	}

	// List queries do not preload the ledger; back-fill counts for sessions
	// that are no longer live.
	if len(storedIDs) > 0 {
		counts, err := s.repo.Violation().CountBySession(ctx, s.db, storedIDs)
		if err != nil {
			s.logger.Warn("Could not count violations for listing", "error", err)
			return out
		}
		countByID := make(map[string]int, len(counts))
		for _, c := range counts {
			countByID[c.SessionID] = c.Count
		}
		for _, resp := range out {
			if n, ok := countByID[resp.ProctoringSession.ID]; ok {
				resp.ViolationCount = n
			}
		}
	}
	return out
}
