package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// ProjectRepository persists projects and their committee rosters.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id uint) (models.Project, error)
	UpdateStatus(ctx context.Context, id uint, status string, approvedAt *time.Time) error
	ListApprovedBetween(ctx context.Context, from, to time.Time) ([]models.Project, error)
	ReplaceCommittee(ctx context.Context, projectID uint, evaluatorIDs []uint) error
	CommitteeIDs(ctx context.Context, projectID uint) ([]uint, error)
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository constructs a project repository.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	return conn(ctx, r.db).Create(project).Error
}

func (r *projectRepository) FindByID(ctx context.Context, id uint) (models.Project, error) {
	var project models.Project
	if err := conn(ctx, r.db).First(&project, id).Error; err != nil {
		return models.Project{}, err
	}
	return project, nil
}

func (r *projectRepository) UpdateStatus(ctx context.Context, id uint, status string, approvedAt *time.Time) error {
	result := conn(ctx, r.db).Model(&models.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "approved_at": approvedAt})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *projectRepository) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]models.Project, error) {
	var projects []models.Project
	if err := conn(ctx, r.db).
		Where("status = ? AND approved_at >= ? AND approved_at <= ?", models.ProjectStatusApproved, from, to).
		Order("id ASC").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *projectRepository) ReplaceCommittee(ctx context.Context, projectID uint, evaluatorIDs []uint) error {
	db := conn(ctx, r.db)
	if err := db.Where("project_id = ?", projectID).Delete(&models.CommitteeMember{}).Error; err != nil {
		return err
	}
	if len(evaluatorIDs) == 0 {
		return nil
	}

	members := make([]models.CommitteeMember, 0, len(evaluatorIDs))
	for _, id := range evaluatorIDs {
		members = append(members, models.CommitteeMember{ProjectID: projectID, EvaluatorID: id})
	}
	return translate(db.Create(&members).Error)
}

func (r *projectRepository) CommitteeIDs(ctx context.Context, projectID uint) ([]uint, error) {
	var ids []uint
	if err := conn(ctx, r.db).Model(&models.CommitteeMember{}).
		Where("project_id = ?", projectID).
		Order("evaluator_id ASC").
		Pluck("evaluator_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
