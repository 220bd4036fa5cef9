package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// MarkRepository persists supervisor and committee marks.
type MarkRepository interface {
	UpsertSupervisorMark(ctx context.Context, mark *models.SupervisorMark) error
	FindSupervisorMark(ctx context.Context, submissionID uint) (*models.SupervisorMark, error)
	FindEvaluationMark(ctx context.Context, submissionID, evaluatorID uint) (*models.EvaluationMark, error)
	SaveEvaluationMark(ctx context.Context, mark *models.EvaluationMark) error
	ListEvaluationMarks(ctx context.Context, submissionID uint) ([]models.EvaluationMark, error)
}

type markRepository struct {
	db *gorm.DB
}

// NewMarkRepository constructs a mark repository.
func NewMarkRepository(db *gorm.DB) MarkRepository {
	return &markRepository{db: db}
}

func (r *markRepository) UpsertSupervisorMark(ctx context.Context, mark *models.SupervisorMark) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"supervisor_id", "score", "comments", "updated_at"}),
	}).Create(mark).Error
}

func (r *markRepository) FindSupervisorMark(ctx context.Context, submissionID uint) (*models.SupervisorMark, error) {
	var mark models.SupervisorMark
	err := conn(ctx, r.db).Where("submission_id = ?", submissionID).First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mark, nil
}

func (r *markRepository) FindEvaluationMark(ctx context.Context, submissionID, evaluatorID uint) (*models.EvaluationMark, error) {
	var mark models.EvaluationMark
	err := conn(ctx, r.db).Where("submission_id = ? AND evaluator_id = ?", submissionID, evaluatorID).First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mark, nil
}

// SaveEvaluationMark inserts a new mark or updates a draft. A finalized row is
// never overwritten; a concurrent insert surfaces as ErrConcurrencyConflict.
func (r *markRepository) SaveEvaluationMark(ctx context.Context, mark *models.EvaluationMark) error {
	db := conn(ctx, r.db)
	if mark.ID == 0 {
		return translate(db.Create(mark).Error)
	}

	result := db.Model(&models.EvaluationMark{}).
		Where("id = ? AND is_final = ?", mark.ID, false).
		Updates(map[string]interface{}{
			"score":        mark.Score,
			"comments":     mark.Comments,
			"is_final":     mark.IsFinal,
			"finalized_at": mark.FinalizedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("evaluation mark %d changed concurrently: %w", mark.ID, workflow.ErrConcurrencyConflict)
	}
	return nil
}

func (r *markRepository) ListEvaluationMarks(ctx context.Context, submissionID uint) ([]models.EvaluationMark, error) {
	var marks []models.EvaluationMark
	if err := conn(ctx, r.db).
		Where("submission_id = ?", submissionID).
		Order("evaluator_id ASC").
		Find(&marks).Error; err != nil {
		return nil, err
	}
	return marks, nil
}
