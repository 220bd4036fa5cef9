package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// SubmissionChange is the set of columns a transition writes.
type SubmissionChange struct {
	Status               workflow.Status
	IsFinal              bool
	Feedback             *string
	AutoLockReason       string
	SupervisorReviewedAt *time.Time
	LockedAt             *time.Time
}

// SubmissionRepository persists submissions and their status history.
type SubmissionRepository interface {
	LockVersionKey(ctx context.Context, projectID, documentTypeID uint) error
	MaxVersion(ctx context.Context, projectID, documentTypeID uint) (int, error)
	HasFinal(ctx context.Context, projectID, documentTypeID uint) (bool, error)
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id uint) (models.Submission, error)
	FindForUpdate(ctx context.Context, id uint) (models.Submission, error)
	Latest(ctx context.Context, projectID, documentTypeID uint) (models.Submission, error)
	Relevant(ctx context.Context, projectID, documentTypeID uint) (models.Submission, error)
	ListVersions(ctx context.Context, projectID, documentTypeID uint) ([]models.Submission, error)
	ApplyTransition(ctx context.Context, submission *models.Submission, change SubmissionChange) error
	AppendHistory(ctx context.Context, entry *models.SubmissionStatusHistory) error
	ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionStatusHistory, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// LockVersionKey serialises version allocation for a pair within the current transaction.
func (r *submissionRepository) LockVersionKey(ctx context.Context, projectID, documentTypeID uint) error {
	return advisoryXactLock(conn(ctx, r.db), "submission-version", fmt.Sprint(projectID), fmt.Sprint(documentTypeID))
}

func (r *submissionRepository) MaxVersion(ctx context.Context, projectID, documentTypeID uint) (int, error) {
	var version int
	if err := conn(ctx, r.db).Model(&models.Submission{}).
		Where("project_id = ? AND document_type_id = ?", projectID, documentTypeID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error; err != nil {
		return 0, err
	}
	return version, nil
}

func (r *submissionRepository) HasFinal(ctx context.Context, projectID, documentTypeID uint) (bool, error) {
	var count int64
	if err := conn(ctx, r.db).Model(&models.Submission{}).
		Where("project_id = ? AND document_type_id = ? AND is_final = ?", projectID, documentTypeID, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return translate(conn(ctx, r.db).Create(submission).Error)
}

func (r *submissionRepository) FindByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := conn(ctx, r.db).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) FindForUpdate(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := forUpdate(conn(ctx, r.db)).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Latest(ctx context.Context, projectID, documentTypeID uint) (models.Submission, error) {
	var submission models.Submission
	if err := forUpdate(conn(ctx, r.db)).
		Where("project_id = ? AND document_type_id = ?", projectID, documentTypeID).
		Order("version DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

// Relevant returns the final submission for a pair, falling back to the latest version.
func (r *submissionRepository) Relevant(ctx context.Context, projectID, documentTypeID uint) (models.Submission, error) {
	var submission models.Submission
	err := conn(ctx, r.db).
		Where("project_id = ? AND document_type_id = ? AND is_final = ?", projectID, documentTypeID, true).
		Order("version DESC").
		First(&submission).Error
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	err = conn(ctx, r.db).
		Where("project_id = ? AND document_type_id = ?", projectID, documentTypeID).
		Order("version DESC").
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListVersions(ctx context.Context, projectID, documentTypeID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := conn(ctx, r.db).
		Where("project_id = ? AND document_type_id = ?", projectID, documentTypeID).
		Order("version ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

// ApplyTransition writes change only if the row still carries the lock version
// and status that were read. A lost race yields ErrConcurrencyConflict.
func (r *submissionRepository) ApplyTransition(ctx context.Context, submission *models.Submission, change SubmissionChange) error {
	updates := map[string]interface{}{
		"status":       change.Status,
		"is_final":     change.IsFinal,
		"lock_version": submission.LockVersion + 1,
	}
	if change.Feedback != nil {
		updates["feedback"] = *change.Feedback
	}
	if change.AutoLockReason != "" {
		updates["auto_lock_reason"] = change.AutoLockReason
	}
	if change.SupervisorReviewedAt != nil {
		updates["supervisor_reviewed_at"] = *change.SupervisorReviewedAt
	}
	if change.LockedAt != nil {
		updates["locked_at"] = *change.LockedAt
	}

	result := conn(ctx, r.db).Model(&models.Submission{}).
		Where("id = ? AND lock_version = ? AND status = ?", submission.ID, submission.LockVersion, submission.Status).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("submission %d changed concurrently: %w", submission.ID, workflow.ErrConcurrencyConflict)
	}

	submission.Status = change.Status
	submission.IsFinal = change.IsFinal
	submission.LockVersion++
	if change.Feedback != nil {
		submission.Feedback = *change.Feedback
	}
	if change.AutoLockReason != "" {
		submission.AutoLockReason = change.AutoLockReason
	}
	if change.SupervisorReviewedAt != nil {
		submission.SupervisorReviewedAt = change.SupervisorReviewedAt
	}
	if change.LockedAt != nil {
		submission.LockedAt = change.LockedAt
	}
	return nil
}

func (r *submissionRepository) AppendHistory(ctx context.Context, entry *models.SubmissionStatusHistory) error {
	return conn(ctx, r.db).Create(entry).Error
}

func (r *submissionRepository) ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionStatusHistory, error) {
	var entries []models.SubmissionStatusHistory
	if err := conn(ctx, r.db).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
