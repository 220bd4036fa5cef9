package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// ActivityLogFilter narrows audit queries. Zero values match everything;
// Until is exclusive.
type ActivityLogFilter struct {
	Page       int
	PageSize   int
	ActorID    *uint
	Action     string
	EntityType string
	EntityID   *uint
	Since      *time.Time
	Until      *time.Time
}

func (f ActivityLogFilter) scope(db *gorm.DB) *gorm.DB {
	conditions := map[string]interface{}{}
	if f.ActorID != nil {
		conditions["actor_id"] = *f.ActorID
	}
	if f.Action != "" {
		conditions["action"] = f.Action
	}
	if f.EntityType != "" {
		conditions["entity_type"] = f.EntityType
	}
	if f.EntityID != nil {
		conditions["entity_id"] = *f.EntityID
	}
	if len(conditions) > 0 {
		db = db.Where(conditions)
	}
	if f.Since != nil {
		db = db.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		db = db.Where("created_at < ?", *f.Until)
	}
	return db
}

func (f ActivityLogFilter) page(db *gorm.DB) *gorm.DB {
	if f.PageSize <= 0 {
		return db
	}
	offset := 0
	if f.Page > 1 {
		offset = (f.Page - 1) * f.PageSize
	}
	return db.Offset(offset).Limit(f.PageSize)
}

// ActivityLogRepository persists the audit trail.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return conn(ctx, r.db).Create(entry).Error
}

// List returns one page, newest first, and the total before paging.
func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	base := conn(ctx, r.db).Model(&models.ActivityLog{}).Scopes(filter.scope)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.ActivityLog{}, 0, nil
	}

	var entries []models.ActivityLog
	err := base.Scopes(filter.page).
		Order("created_at DESC").
		Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
