package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/events"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/session"
	"github.com/SAP-F-2025/proctoring-service/internal/validator"
)

type proctoringService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator

	registry  *session.Registry
	publisher events.EventPublisher
	redis     *redis.Client
	queueKey  string
	policy    session.FlagPolicy
}

// ProctoringServiceDeps carries the collaborators beyond the usual
// repo/db/logger/validator quartet.
type ProctoringServiceDeps struct {
	Registry  *session.Registry
	Publisher events.EventPublisher
	Redis     *redis.Client
	QueueKey  string
	Policy    session.FlagPolicy
}

func NewProctoringService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, deps ProctoringServiceDeps) ProctoringService {
	if deps.Registry == nil {
		deps.Registry = session.NewRegistry()
	}
	return &proctoringService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		redis:     deps.Redis,
		queueKey:  deps.QueueKey,
		policy:    deps.Policy,
	}
}

// ===== LIFECYCLE =====

func (s *proctoringService) Start(ctx context.Context, req *StartSessionRequest, actorID string) (*SessionResponse, error) {
	s.logger.Info("Starting proctoring session",
		"student_id", req.StudentID,
		"assessment_id", req.AssessmentID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exists, err := s.repo.User().ExistsByID(ctx, req.StudentID)
	if err != nil {
		// Identity provider outage must not block exam starts
		s.logger.Warn("Could not verify student against identity provider",
			"student_id", req.StudentID, "error", err)
	} else if !exists {
		return nil, ErrUserNotFound
	}

	// One live session per student
	existing, err := s.repo.Session().GetActiveByStudent(ctx, s.db, req.StudentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if existing != nil {
		return nil, ErrStudentHasActive
	}

	now := time.Now()
	model := &models.ProctoringSession{
		ID:               uuid.NewString(),
		StudentID:        req.StudentID,
		AssessmentID:     req.AssessmentID,
		Status:           models.SessionActive,
		StartTime:        now,
		TimeLimitSeconds: req.TimeLimitSeconds,
	}
	if len(req.ClientInfo) > 0 {
		info, err := json.Marshal(req.ClientInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to encode client info: %w", err)
		}
		model.ClientInfo = datatypes.JSON(info)
	}

	if err := s.repo.Session().Create(ctx, nil, model); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	live, err := s.newLiveSession(model)
	if err != nil {
		return nil, err
	}
	s.registry.Add(live)

	s.publishEvent(ctx, events.NewEvent(events.TypeSessionStarted, events.SessionStartedEvent{
		SessionID:        model.ID,
		StudentID:        model.StudentID,
		AssessmentID:     model.AssessmentID,
		StartTime:        model.StartTime,
		TimeLimitSeconds: model.TimeLimitSeconds,
	}))

	snap := live.Snapshot(now)
	return s.toResponse(model, &snap), nil
}

func (s *proctoringService) Submit(ctx context.Context, sessionID, studentID string) (*SessionResponse, error) {
	live, _, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, ErrSessionAlreadyEnded
	}
	if live.StudentID() != studentID {
		return nil, NewPermissionError(studentID, "session", sessionID, "submit", "not owned by student")
	}

	if err := live.Submit(time.Now()); err != nil {
		if errors.Is(err, session.ErrAlreadyTerminal) {
			return nil, ErrSessionAlreadyEnded
		}
		return nil, err
	}
	s.registry.Remove(sessionID)

	return s.GetByID(ctx, sessionID, studentID)
}

func (s *proctoringService) Terminate(ctx context.Context, sessionID string, req *TerminateSessionRequest, actorID string) (*SessionResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if actorID == "" {
		return nil, ErrInvalidTerminate
	}

	live, _, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, ErrSessionAlreadyEnded
	}

	s.logger.Info("Terminating proctoring session",
		"session_id", sessionID,
		"actor", actorID,
		"reason", req.Reason)

	if err := live.Terminate(actorID, req.Reason, time.Now()); err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCommand):
			return nil, ErrInvalidTerminate
		case errors.Is(err, session.ErrAlreadyTerminal):
			return nil, ErrSessionAlreadyEnded
		default:
			return nil, err
		}
	}
	s.registry.Remove(sessionID)

	return s.GetByID(ctx, sessionID, actorID)
}

// HandleExpiry is called by the expiry sweeper after a session auto-submitted
// on its clock. The terminal transition already persisted through the
// transition hook, only the registry entry remains to clean up.
func (s *proctoringService) HandleExpiry(ctx context.Context, sessionID string) error {
	s.registry.Remove(sessionID)
	s.logger.Info("Session auto-submitted on expiry", "session_id", sessionID)
	return nil
}

// ===== VIOLATION LEDGER =====

func (s *proctoringService) IngestViolation(ctx context.Context, sessionID string, req *ViolationSignalRequest) (*models.Violation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	live, _, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, ErrSessionAlreadyEnded
	}

	now := time.Now()
	timestamp := now
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	violation := models.Violation{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Type:         req.Type,
		Severity:     req.Severity,
		Timestamp:    timestamp,
		Description:  req.Description,
		ReviewStatus: models.ReviewPending,
	}
	if req.AIConfidence != nil {
		violation.AIConfidence = *req.AIConfidence
	}
	if req.ScreenshotURL != "" {
		violation.ScreenshotURL = &req.ScreenshotURL
	}
	if req.AudioURL != "" {
		violation.AudioURL = &req.AudioURL
	}
	if len(req.Data) > 0 {
		data, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode violation data: %w", err)
		}
		violation.Data = datatypes.JSON(data)
	}

	flaggedBefore := live.Snapshot(now).Flagged

	// Record returns this request's entry with its seq; the ledger tail may
	// already belong to a concurrent ingest by the time we look again.
	recorded, err := live.Record(violation)
	if err != nil {
		if errors.Is(err, session.ErrSessionTerminal) {
			return nil, ErrSessionAlreadyEnded
		}
		return nil, err
	}

	snap := live.Snapshot(now)

	s.enqueueViolation(ctx, &recorded)

	if !flaggedBefore && snap.Flagged {
		s.persistFlag(ctx, sessionID, true, snap.FlaggedBy)
	}

	s.publishEvent(ctx, events.NewEvent(events.TypeViolationRecorded, events.ViolationRecordedEvent{
		SessionID:    sessionID,
		ViolationID:  recorded.ID,
		Type:         string(recorded.Type),
		Severity:     string(recorded.Severity),
		AIConfidence: recorded.AIConfidence,
		WarningCount: snap.WarningCount,
		Flagged:      snap.Flagged,
	}))

	s.logger.Info("Violation recorded",
		"session_id", sessionID,
		"type", recorded.Type,
		"severity", recorded.Severity,
		"seq", recorded.Seq,
		"warning_count", snap.WarningCount,
		"flagged", snap.Flagged)

	return &recorded, nil
}

func (s *proctoringService) GetViolations(ctx context.Context, sessionID string, userID string) ([]*models.Violation, error) {
	model, err := s.getModel(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(ctx, model, userID, "read violations"); err != nil {
		return nil, err
	}

	// The live ledger is authoritative while the persistence queue drains
	if live, err := s.registry.Get(sessionID); err == nil {
		history := live.History()
		out := make([]*models.Violation, len(history))
		for i := range history {
			v := history[i]
			out[i] = &v
		}
		return out, nil
	}

	return s.repo.Violation().GetBySession(ctx, s.db, sessionID)
}

func (s *proctoringService) ReviewViolation(ctx context.Context, violationID string, req *ReviewViolationRequest, reviewerID string) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if reviewerID == "" {
		return NewPermissionError("", "violation", violationID, "review", "reviewer required")
	}

	err := s.repo.Violation().UpdateReview(ctx, nil, violationID, req.Status, reviewerID, req.Notes)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrViolationNotFound
		}
		return fmt.Errorf("failed to update violation review: %w", err)
	}
	return nil
}

// ===== REVIEW AND PROGRESS =====

func (s *proctoringService) SetFlag(ctx context.Context, sessionID string, flagged bool, actorID string) (*SessionResponse, error) {
	if actorID == "" {
		return nil, NewPermissionError("", "session", sessionID, "flag", "actor required")
	}

	model, err := s.getModel(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Flag toggles are the one mutation allowed after a terminal state, for
	// post-exam review
	if live, err := s.registry.Get(sessionID); err == nil {
		if err := live.SetFlag(flagged, actorID); err != nil {
			return nil, err
		}
	}

	s.persistFlag(ctx, model.ID, flagged, actorID)

	s.publishEvent(ctx, events.NewEvent(events.TypeSessionFlagged, events.SessionFlaggedEvent{
		SessionID: sessionID,
		Flagged:   flagged,
		Actor:     actorID,
	}))

	return s.GetByID(ctx, sessionID, actorID)
}

func (s *proctoringService) SetProgress(ctx context.Context, sessionID string, progress int, studentID string) error {
	live, _, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if live == nil {
		return ErrSessionAlreadyEnded
	}
	if live.StudentID() != studentID {
		return NewPermissionError(studentID, "session", sessionID, "progress", "not owned by student")
	}

	if err := live.SetProgress(progress); err != nil {
		if errors.Is(err, session.ErrAlreadyTerminal) {
			return ErrSessionAlreadyEnded
		}
		return err
	}

	// Best effort write-behind, the live registry holds the truth
	if err := s.repo.Session().UpdateFields(ctx, nil, sessionID, map[string]interface{}{
		"progress": live.Snapshot(time.Now()).Progress,
	}); err != nil {
		s.logger.Warn("Failed to persist progress", "session_id", sessionID, "error", err)
	}
	return nil
}

func (s *proctoringService) UpdateDeviceStatus(ctx context.Context, sessionID string, req *DeviceStatusRequest, studentID string) error {
	model, err := s.getModel(ctx, sessionID)
	if err != nil {
		return err
	}
	if model.StudentID != studentID {
		return NewPermissionError(studentID, "session", sessionID, "device_status", "not owned by student")
	}
	if model.Status.IsTerminal() {
		return ErrSessionAlreadyEnded
	}

	if req.CameraStatus != "" {
		model.CameraStatus = req.CameraStatus
	}
	if req.MicrophoneStatus != "" {
		model.MicrophoneStatus = req.MicrophoneStatus
	}
	if req.ScreenStatus != "" {
		model.ScreenStatus = req.ScreenStatus
	}

	if err := s.repo.Session().Update(ctx, nil, model); err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}
	return nil
}

// ===== READ OPERATIONS =====

func (s *proctoringService) GetByID(ctx context.Context, sessionID string, userID string) (*SessionResponse, error) {
	model, err := s.repo.Session().GetByIDWithViolations(ctx, s.db, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := s.checkAccess(ctx, model, userID, "read"); err != nil {
		return nil, err
	}

	if live, err := s.registry.Get(sessionID); err == nil {
		snap := live.Snapshot(time.Now())
		return s.toResponse(model, &snap), nil
	}
	return s.toResponse(model, nil), nil
}

func (s *proctoringService) List(ctx context.Context, req *SessionListRequest, userID string) (*SessionListResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	req.Normalize()

	filters := repositories.SessionFilters{
		Limit:  req.PageSize,
		Offset: (req.Page - 1) * req.PageSize,
		SortBy: "start_time",
	}
	if req.Status != "" {
		status := req.Status
		filters.Status = &status
	}
	if req.StudentID != "" {
		studentID := req.StudentID
		filters.StudentID = &studentID
	}
	if req.AssessmentID != 0 {
		assessmentID := req.AssessmentID
		filters.AssessmentID = &assessmentID
	}
	if req.FlaggedOnly {
		flagged := true
		filters.Flagged = &flagged
	}

	sessions, total, err := s.repo.Session().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return &SessionListResponse{
		Sessions: s.toResponses(ctx, sessions),
		Total:    total,
		Page:     req.Page,
		Size:     req.PageSize,
	}, nil
}

func (s *proctoringService) TimeRemaining(ctx context.Context, sessionID string) (int, error) {
	if live, err := s.registry.Get(sessionID); err == nil {
		return live.Snapshot(time.Now()).TimeRemainingSeconds, nil
	}

	model, err := s.getModel(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if model.Status.IsTerminal() {
		return 0, nil
	}
	return session.Remaining(model.StartTime, model.TimeLimitSeconds, time.Now()), nil
}

// ===== REHYDRATION =====

func (s *proctoringService) Rehydrate(ctx context.Context) (int, error) {
	active, err := s.repo.Session().GetActive(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("failed to load active sessions: %w", err)
	}

	count := 0
	for _, model := range active {
		if _, err := s.registry.Get(model.ID); err == nil {
			continue
		}
		live, err := s.rehydrateOne(ctx, model)
		if err != nil {
			s.logger.Error("Failed to rehydrate session", "session_id", model.ID, "error", err)
			continue
		}
		s.registry.Add(live)
		count++
	}

	if count > 0 {
		s.logger.Info("Rehydrated active sessions", "count", count)
	}
	return count, nil
}
