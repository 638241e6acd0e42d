package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/session"
)

type monitorService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	registry *session.Registry
}

func NewMonitorService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, registry *session.Registry) MonitorService {
	return &monitorService{
		repo:     repo,
		db:       db,
		logger:   logger,
		registry: registry,
	}
}

func (s *monitorService) Overview(ctx context.Context, userID string) (*MonitorOverview, error) {
	if err := s.requireStaff(ctx, userID, "overview"); err != nil {
		return nil, err
	}

	stats, err := s.repo.Session().GetStats(ctx, s.db, repositories.SessionFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to compute session stats: %w", err)
	}

	overview := &MonitorOverview{
		TotalSessions:      stats.TotalSessions,
		ActiveSessions:     stats.ActiveSessions,
		ViolationsDetected: stats.ViolationsDetected,
		AverageConfidence:  stats.AverageConfidence,
		FlaggedSessions:    stats.FlaggedSessions,
		TerminatedSessions: stats.TerminatedSessions,
		ViolationsByType:   stats.ViolationsByType,
		ViolationsBySev:    stats.ViolationsBySev,
		GeneratedAt:        time.Now(),
	}

	// The registry sees sessions the stats cache may lag behind on
	if live := s.registry.Len(); live > overview.ActiveSessions {
		overview.ActiveSessions = live
	}

	return overview, nil
}

func (s *monitorService) ActiveSessions(ctx context.Context, userID string) ([]*SessionResponse, error) {
	if err := s.requireStaff(ctx, userID, "monitor"); err != nil {
		return nil, err
	}

	active, err := s.repo.Session().GetActive(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}

	// Active rows come without the student association; resolve names in one
	// identity-provider batch.
	studentIDs := make([]string, 0, len(active))
	for _, model := range active {
		studentIDs = append(studentIDs, model.StudentID)
	}
	names := s.studentNames(ctx, studentIDs)

	now := time.Now()
	out := make([]*SessionResponse, 0, len(active))
	for _, model := range active {
		resp := &SessionResponse{
			ProctoringSession: model,
			StudentName:       names[model.StudentID],
		}
		if live, err := s.registry.Get(model.ID); err == nil {
			snap := live.Snapshot(now)
			resp.TimeRemainingSeconds = snap.TimeRemainingSeconds
			resp.TimeWarning = snap.TimeWarning
			resp.ViolationCount = len(snap.Violations)
			resp.WarningCount = snap.WarningCount
			resp.Flagged = snap.Flagged
			resp.Progress = snap.Progress
		} else {
			remaining := session.Remaining(model.StartTime, model.TimeLimitSeconds, now)
			resp.TimeRemainingSeconds = remaining
			resp.TimeWarning = remaining < session.TimeWarningSeconds
		}
		out = append(out, resp)
	}

	return out, nil
}

func (s *monitorService) FlaggedSessions(ctx context.Context, filters repositories.SessionFilters, userID string) (*SessionListResponse, error) {
	if err := s.requireStaff(ctx, userID, "monitor"); err != nil {
		return nil, err
	}

	flagged := true
	filters.Flagged = &flagged
	if filters.Limit == 0 {
		filters.Limit = 20
	}

	sessions, total, err := s.repo.Session().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged sessions: %w", err)
	}

	sessionIDs := make([]string, 0, len(sessions))
	for _, model := range sessions {
		sessionIDs = append(sessionIDs, model.ID)
	}
	counts := s.violationCounts(ctx, sessionIDs)

	responses := make([]*SessionResponse, 0, len(sessions))
	for _, model := range sessions {
		responses = append(responses, &SessionResponse{
			ProctoringSession: model,
			StudentName:       model.Student.FullName,
			ViolationCount:    counts[model.ID],
		})
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}
	return &SessionListResponse{
		Sessions: responses,
		Total:    total,
		Page:     page,
		Size:     filters.Limit,
	}, nil
}

// studentNames resolves display names for a set of students. Lookups are
// best-effort; the dashboard renders IDs when the identity provider is down.
func (s *monitorService) studentNames(ctx context.Context, studentIDs []string) map[string]string {
	names := make(map[string]string, len(studentIDs))
	if len(studentIDs) == 0 {
		return names
	}
	users, err := s.repo.User().GetByIDs(ctx, studentIDs)
	if err != nil {
		s.logger.Warn("Could not resolve student names", "error", err)
		return names
	}
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}

// violationCounts returns ledger sizes per session, empty on query failure.
func (s *monitorService) violationCounts(ctx context.Context, sessionIDs []string) map[string]int {
	out := make(map[string]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out
	}
	counts, err := s.repo.Violation().CountBySession(ctx, s.db, sessionIDs)
	if err != nil {
		s.logger.Warn("Could not count violations", "error", err)
		return out
	}
	for _, c := range counts {
		out[c.SessionID] = c.Count
	}
	return out
}

func (s *monitorService) requireStaff(ctx context.Context, userID, action string) error {
	if userID == "" {
		return nil
	}
	for _, role := range []models.UserRole{models.RoleProctor, models.RoleTeacher, models.RoleAdmin} {
		ok, err := s.repo.User().HasRole(ctx, userID, role)
		if err != nil {
			// Dashboard reads expose every student's data; fail closed when
			// roles cannot be verified.
			s.logger.Warn("Could not verify role", "user_id", userID, "error", err)
			return fmt.Errorf("failed to verify role for %s: %w", userID, err)
		}
		if ok {
			return nil
		}
	}
	return NewPermissionError(userID, "monitor", "", action, "staff role required")
}
