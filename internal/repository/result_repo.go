package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// FinalResultRepository persists project final results.
type FinalResultRepository interface {
	FindByProject(ctx context.Context, projectID uint) (models.FinalResult, error)
	Create(ctx context.Context, result *models.FinalResult) error
	UpdateComputed(ctx context.Context, result *models.FinalResult) (bool, error)
	Release(ctx context.Context, projectID, actorID uint, at time.Time) (bool, error)
}

type finalResultRepository struct {
	db *gorm.DB
}

// NewFinalResultRepository constructs a final result repository.
func NewFinalResultRepository(db *gorm.DB) FinalResultRepository {
	return &finalResultRepository{db: db}
}

func (r *finalResultRepository) FindByProject(ctx context.Context, projectID uint) (models.FinalResult, error) {
	var result models.FinalResult
	if err := conn(ctx, r.db).Where("project_id = ?", projectID).First(&result).Error; err != nil {
		return models.FinalResult{}, err
	}
	return result, nil
}

func (r *finalResultRepository) Create(ctx context.Context, result *models.FinalResult) error {
	return translate(conn(ctx, r.db).Create(result).Error)
}

// UpdateComputed overwrites a draft result. It reports false when the row is
// no longer in the computed state.
func (r *finalResultRepository) UpdateComputed(ctx context.Context, result *models.FinalResult) (bool, error) {
	res := conn(ctx, r.db).Model(&models.FinalResult{}).
		Where("project_id = ? AND status = ?", result.ProjectID, models.ResultStatusComputed).
		Updates(map[string]interface{}{
			"total_score": result.TotalScore,
			"breakdown":   result.Breakdown,
			"computed_at": result.ComputedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release flips a computed result to released. Exactly one concurrent caller
// observes true.
func (r *finalResultRepository) Release(ctx context.Context, projectID, actorID uint, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&models.FinalResult{}).
		Where("project_id = ? AND status = ?", projectID, models.ResultStatusComputed).
		Updates(map[string]interface{}{
			"status":      models.ResultStatusReleased,
			"released":    true,
			"released_at": at,
			"released_by": actorID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
