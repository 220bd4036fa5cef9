package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// DocumentTypeRepository persists document types.
type DocumentTypeRepository interface {
	Create(ctx context.Context, documentType *models.DocumentType) error
	FindByID(ctx context.Context, id uint) (models.DocumentType, error)
	List(ctx context.Context, activeOnly bool) ([]models.DocumentType, error)
}

type documentTypeRepository struct {
	db *gorm.DB
}

// NewDocumentTypeRepository constructs a document type repository.
func NewDocumentTypeRepository(db *gorm.DB) DocumentTypeRepository {
	return &documentTypeRepository{db: db}
}

func (r *documentTypeRepository) Create(ctx context.Context, documentType *models.DocumentType) error {
	return translate(conn(ctx, r.db).Create(documentType).Error)
}

func (r *documentTypeRepository) FindByID(ctx context.Context, id uint) (models.DocumentType, error) {
	var documentType models.DocumentType
	if err := conn(ctx, r.db).First(&documentType, id).Error; err != nil {
		return models.DocumentType{}, err
	}
	return documentType, nil
}

func (r *documentTypeRepository) List(ctx context.Context, activeOnly bool) ([]models.DocumentType, error) {
	query := conn(ctx, r.db).Model(&models.DocumentType{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var items []models.DocumentType
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// DeadlineFilter narrows deadline listings.
type DeadlineFilter struct {
	DocumentTypeID uint
	PendingOnly    bool
}

// DeadlineRepository persists deadlines, batches and missed-deadline records.
type DeadlineRepository interface {
	CreateBatch(ctx context.Context, batch *models.DeadlineBatch) error
	FindBatch(ctx context.Context, id uint) (models.DeadlineBatch, error)
	ListBatches(ctx context.Context) ([]models.DeadlineBatch, error)
	Create(ctx context.Context, deadline *models.Deadline) error
	FindByID(ctx context.Context, id uint) (models.Deadline, error)
	List(ctx context.Context, filter DeadlineFilter) ([]models.Deadline, error)
	ListDue(ctx context.Context, now time.Time) ([]models.Deadline, error)
	MarkProcessed(ctx context.Context, id uint, at time.Time) (bool, error)
	Applicable(ctx context.Context, project models.Project, documentTypeID uint) (*models.Deadline, error)
	HasProjectDeadline(ctx context.Context, projectID, documentTypeID uint) (bool, error)
	RecordMiss(ctx context.Context, deadlineID, projectID uint) (bool, error)
}

type deadlineRepository struct {
	db *gorm.DB
}

// NewDeadlineRepository constructs a deadline repository.
func NewDeadlineRepository(db *gorm.DB) DeadlineRepository {
	return &deadlineRepository{db: db}
}

func (r *deadlineRepository) CreateBatch(ctx context.Context, batch *models.DeadlineBatch) error {
	return conn(ctx, r.db).Create(batch).Error
}

func (r *deadlineRepository) FindBatch(ctx context.Context, id uint) (models.DeadlineBatch, error) {
	var batch models.DeadlineBatch
	if err := conn(ctx, r.db).First(&batch, id).Error; err != nil {
		return models.DeadlineBatch{}, err
	}
	return batch, nil
}

func (r *deadlineRepository) ListBatches(ctx context.Context) ([]models.DeadlineBatch, error) {
	var batches []models.DeadlineBatch
	if err := conn(ctx, r.db).Order("approved_from ASC, id ASC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *deadlineRepository) Create(ctx context.Context, deadline *models.Deadline) error {
	return conn(ctx, r.db).Create(deadline).Error
}

func (r *deadlineRepository) FindByID(ctx context.Context, id uint) (models.Deadline, error) {
	var deadline models.Deadline
	if err := conn(ctx, r.db).First(&deadline, id).Error; err != nil {
		return models.Deadline{}, err
	}
	return deadline, nil
}

func (r *deadlineRepository) List(ctx context.Context, filter DeadlineFilter) ([]models.Deadline, error) {
	query := conn(ctx, r.db).Model(&models.Deadline{})
	if filter.DocumentTypeID > 0 {
		query = query.Where("document_type_id = ?", filter.DocumentTypeID)
	}
	if filter.PendingOnly {
		query = query.Where("locked = ?", false)
	}

	var deadlines []models.Deadline
	if err := query.Order("due_at ASC, id ASC").Find(&deadlines).Error; err != nil {
		return nil, err
	}
	return deadlines, nil
}

func (r *deadlineRepository) ListDue(ctx context.Context, now time.Time) ([]models.Deadline, error) {
	var deadlines []models.Deadline
	if err := conn(ctx, r.db).
		Where("due_at <= ? AND locked = ?", now, false).
		Order("due_at ASC, id ASC").
		Find(&deadlines).Error; err != nil {
		return nil, err
	}
	return deadlines, nil
}

func (r *deadlineRepository) MarkProcessed(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := conn(ctx, r.db).Model(&models.Deadline{}).
		Where("id = ? AND locked = ?", id, false).
		Updates(map[string]interface{}{"locked": true, "processed_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Applicable returns the deadline governing a project's document type. A
// project-specific deadline wins over batch deadlines; among candidates the
// earliest due date applies. Returns nil when no deadline applies.
func (r *deadlineRepository) Applicable(ctx context.Context, project models.Project, documentTypeID uint) (*models.Deadline, error) {
	db := conn(ctx, r.db)

	var deadline models.Deadline
	err := db.Where("project_id = ? AND document_type_id = ?", project.ID, documentTypeID).
		Order("due_at ASC").
		First(&deadline).Error
	if err == nil {
		return &deadline, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if project.ApprovedAt == nil {
		return nil, nil
	}

	err = db.Model(&models.Deadline{}).
		Joins("JOIN deadline_batches ON deadline_batches.id = deadlines.batch_id").
		Where("deadlines.document_type_id = ?", documentTypeID).
		Where("deadline_batches.approved_from <= ? AND deadline_batches.approved_to >= ?", *project.ApprovedAt, *project.ApprovedAt).
		Order("deadlines.due_at ASC").
		First(&deadline).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deadline, nil
}

func (r *deadlineRepository) HasProjectDeadline(ctx context.Context, projectID, documentTypeID uint) (bool, error) {
	var count int64
	if err := conn(ctx, r.db).Model(&models.Deadline{}).
		Where("project_id = ? AND document_type_id = ?", projectID, documentTypeID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordMiss inserts a missed-deadline row and reports whether it was new.
func (r *deadlineRepository) RecordMiss(ctx context.Context, deadlineID, projectID uint) (bool, error) {
	miss := models.DeadlineMiss{DeadlineID: deadlineID, ProjectID: projectID}
	result := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&miss)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
