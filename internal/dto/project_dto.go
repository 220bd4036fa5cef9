package dto

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// ProjectCreateRequest registers a new project.
type ProjectCreateRequest struct {
	Title         string `json:"title" validate:"required,min=3,max=255"`
	Description   string `json:"description" validate:"omitempty,max=5000"`
	GroupLeaderID uint   `json:"group_leader_id" validate:"required"`
	SupervisorID  uint   `json:"supervisor_id" validate:"required"`
}

// CommitteeAssignRequest replaces a project's committee roster.
type CommitteeAssignRequest struct {
	EvaluatorIDs []uint `json:"evaluator_ids" validate:"required,min=1,dive,required"`
}

// ProjectResponse is the serialized representation of a project.
type ProjectResponse struct {
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	GroupLeaderID uint       `json:"group_leader_id"`
	SupervisorID  uint       `json:"supervisor_id"`
	Status        string     `json:"status"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CommitteeIDs  []uint     `json:"committee_ids"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewProjectResponse converts a project and its roster into a DTO.
func NewProjectResponse(project models.Project, committee []uint) ProjectResponse {
	if committee == nil {
		committee = []uint{}
	}
	return ProjectResponse{
		ID:            project.ID,
		Title:         project.Title,
		Description:   project.Description,
		GroupLeaderID: project.GroupLeaderID,
		SupervisorID:  project.SupervisorID,
		Status:        project.Status,
		ApprovedAt:    project.ApprovedAt,
		CommitteeIDs:  committee,
		CreatedAt:     project.CreatedAt,
	}
}
