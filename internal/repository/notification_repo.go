package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

const (
	defaultInboxPage = 50
	maxInboxPage     = 100
)

// NotificationRepository stores per-user inbox entries.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uint) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) inbox(ctx context.Context, userID uint) *gorm.DB {
	return conn(ctx, r.db).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return conn(ctx, r.db).Create(notification).Error
}

// ListByUser returns the newest entries first. Out-of-range limits fall
// back to a page of 50.
func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > maxInboxPage {
		limit = defaultInboxPage
	}
	query := r.inbox(ctx, userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	items := make([]models.Notification, 0, limit)
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&items).Error
	return items, err
}

// MarkRead is idempotent; an entry owned by another user is not found.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) (models.Notification, error) {
	var notification models.Notification
	err := r.inbox(ctx, userID).Where("id = ?", id).First(&notification).Error
	if err != nil || notification.Read {
		return notification, err
	}

	if err := conn(ctx, r.db).Model(&notification).Update("read", true).Error; err != nil {
		return models.Notification{}, err
	}
	notification.Read = true
	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	result := r.inbox(ctx, userID).Where("read = ?", false).Update("read", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.inbox(ctx, userID).Where("read = ?", false).Count(&count).Error
	return count, err
}
