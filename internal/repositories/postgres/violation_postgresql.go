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

type ViolationPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewViolationPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ViolationRepository {
	return &ViolationPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (v *ViolationPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return v.db
}

func (v *ViolationPostgreSQL) Create(ctx context.Context, tx *gorm.DB, violation *models.Violation) error {
	db := v.getDB(tx)
	if err := db.WithContext(ctx).Create(violation).Error; err != nil {
		return err
	}
	cache.SafeInvalidatePattern(ctx, v.cacheManager.Violation, fmt.Sprintf("session:%s:*", violation.SessionID))
	return nil
}

func (v *ViolationPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, violations []*models.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	db := v.getDB(tx)
	if err := db.WithContext(ctx).CreateInBatches(violations, 100).Error; err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, violation := range violations {
		if seen[violation.SessionID] {
			continue
		}
		seen[violation.SessionID] = true
		cache.SafeInvalidatePattern(ctx, v.cacheManager.Violation, fmt.Sprintf("session:%s:*", violation.SessionID))
	}
	return nil
}

func (v *ViolationPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Violation, error) {
	db := v.getDB(tx)
	var violation models.Violation
	if err := db.WithContext(ctx).First(&violation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &violation, nil
}

func (v *ViolationPostgreSQL) UpdateReview(ctx context.Context, tx *gorm.DB, id string, status models.ReviewStatus, reviewerID, notes string) error {
	db := v.getDB(tx)
	result := db.WithContext(ctx).Model(&models.Violation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"review_status": status,
			"reviewed_by":   reviewerID,
			"review_notes":  notes,
			"reviewed_at":   gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (v *ViolationPostgreSQL) GetBySession(ctx context.Context, tx *gorm.DB, sessionID string) ([]*models.Violation, error) {
	db := v.getDB(tx)
	cacheKey := fmt.Sprintf("session:%s:all", sessionID)
	var violations []*models.Violation

	err := v.cacheManager.Violation.CacheOrExecute(ctx, cacheKey, &violations, cache.ViolationCacheConfig.TTL, func() (interface{}, error) {
		var rows []*models.Violation
		if err := db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("seq ASC").
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to get violations: %w", err)
		}
		return rows, nil
	})

	return violations, err
}

func (v *ViolationPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ViolationFilters) ([]*models.Violation, int64, error) {
	db := v.getDB(tx)
	var violations []*models.Violation
	var total int64

	query := db.WithContext(ctx).Model(&models.Violation{})
	query = v.helpers.ApplyViolationFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("timestamp DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&violations).Error; err != nil {
		return nil, 0, err
	}

	return violations, total, nil
}

func (v *ViolationPostgreSQL) CountBySession(ctx context.Context, tx *gorm.DB, sessionIDs []string) ([]repositories.ViolationCount, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	db := v.getDB(tx)
	var counts []repositories.ViolationCount
	err := db.WithContext(ctx).Model(&models.Violation{}).
		Select("session_id, COUNT(*) as count").
		Where("session_id IN ?", sessionIDs).
		Group("session_id").
		Scan(&counts).Error
	return counts, err
}
