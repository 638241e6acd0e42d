package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/cache"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
)

type SessionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewSessionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SessionRepository {
	return &SessionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *SessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(session).Error
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.ProctoringSession, error) {
	db := s.getDB(tx)
	// Cache live sessions, the monitor dashboard polls this hard
	cacheKey := fmt.Sprintf("id:%s", id)
	var session models.ProctoringSession

	err := s.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &session, cache.FastCacheConfig.TTL, func() (interface{}, error) {
		var dbSession models.ProctoringSession
		if err := db.WithContext(ctx).First(&dbSession, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &dbSession, nil
	})

	return &session, err
}

func (s *SessionPostgreSQL) GetByIDWithViolations(ctx context.Context, tx *gorm.DB, id string) (*models.ProctoringSession, error) {
	db := s.getDB(tx)
	var session models.ProctoringSession
	if err := db.WithContext(ctx).
		Preload("Student").
		Preload("Violations", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Save(session).Error; err != nil {
		return err
	}
	cache.InvalidateSessionCache(ctx, s.cacheManager, session.ID, session.StudentID)
	return nil
}

func (s *SessionPostgreSQL) UpdateFields(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	db := s.getDB(tx)
	result := db.WithContext(ctx).Model(&models.ProctoringSession{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, s.cacheManager.Fast, fmt.Sprintf("id:%s", id))
	cache.SafeInvalidatePattern(ctx, s.cacheManager.Stats, "overview*")
	return nil
}

func (s *SessionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Delete(&models.ProctoringSession{}, "id = ?", id).Error
}

func (s *SessionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]*models.ProctoringSession, int64, error) {
	db := s.getDB(tx)
	var sessions []*models.ProctoringSession
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.ProctoringSession{})
	query = s.helpers.ApplySessionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Student").Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (s *SessionPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB) ([]*models.ProctoringSession, error) {
	db := s.getDB(tx)
	var sessions []*models.ProctoringSession
	err := db.WithContext(ctx).
		Where("status = ?", models.SessionActive).
		Order("start_time ASC").
		Find(&sessions).Error
	return sessions, err
}

func (s *SessionPostgreSQL) GetActiveByStudent(ctx context.Context, tx *gorm.DB, studentID string) (*models.ProctoringSession, error) {
	db := s.getDB(tx)
	var session models.ProctoringSession
	err := db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, models.SessionActive).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) (*repositories.SessionStats, error) {
	db := s.getDB(tx)
	var stats repositories.SessionStats

	cacheKey := "overview"
	err := s.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return s.computeStats(ctx, db, filters)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *SessionPostgreSQL) computeStats(ctx context.Context, db *gorm.DB, filters repositories.SessionFilters) (*repositories.SessionStats, error) {
	stats := &repositories.SessionStats{
		StatusBreakdown:  make(map[models.SessionStatus]int),
		ViolationsByType: make(map[models.ViolationType]int),
		ViolationsBySev:  make(map[models.ViolationSeverity]int),
	}

	type statusRow struct {
		Status models.SessionStatus
		Count  int
	}
	var statusRows []statusRow
	query := db.WithContext(ctx).Model(&models.ProctoringSession{})
	query = s.helpers.ApplySessionFilters(query, filters)
	if err := query.Select("status, COUNT(*) as count").Group("status").Scan(&statusRows).Error; err != nil {
		return nil, fmt.Errorf("failed to count sessions by status: %w", err)
	}
	for _, row := range statusRows {
		stats.StatusBreakdown[row.Status] = row.Count
		stats.TotalSessions += row.Count
	}
	stats.ActiveSessions = stats.StatusBreakdown[models.SessionActive]
	stats.TerminatedSessions = stats.StatusBreakdown[models.SessionTerminated]

	var flagged int64
	flaggedQuery := db.WithContext(ctx).Model(&models.ProctoringSession{}).Where("flagged = ?", true)
	flaggedQuery = s.helpers.ApplySessionFilters(flaggedQuery, filters)
	if err := flaggedQuery.Count(&flagged).Error; err != nil {
		return nil, fmt.Errorf("failed to count flagged sessions: %w", err)
	}
	stats.FlaggedSessions = int(flagged)

	type violationRow struct {
		Type     models.ViolationType
		Severity models.ViolationSeverity
		Count    int
	}
	var violationRows []violationRow
	if err := db.WithContext(ctx).Model(&models.Violation{}).
		Select("type, severity, COUNT(*) as count").
		Group("type, severity").
		Scan(&violationRows).Error; err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}
	for _, row := range violationRows {
		stats.ViolationsByType[row.Type] += row.Count
		stats.ViolationsBySev[row.Severity] += row.Count
		stats.ViolationsDetected += row.Count
	}

	var avgConfidence *float64
	if err := db.WithContext(ctx).Model(&models.ProctoringSession{}).
		Select("AVG(ai_confidence)").
		Where("ai_confidence IS NOT NULL").
		Scan(&avgConfidence).Error; err != nil {
		return nil, fmt.Errorf("failed to average confidence: %w", err)
	}
	if avgConfidence != nil {
		stats.AverageConfidence = *avgConfidence
	}

	return stats, nil
}
