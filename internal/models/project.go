package models

import "time"

// Project lifecycle states.
const (
	ProjectStatusPending  = "pending"
	ProjectStatusApproved = "approved"
	ProjectStatusRejected = "rejected"
)

// Project is a student group's final-year project.
type Project struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	GroupLeaderID uint       `gorm:"not null;index" json:"group_leader_id"`
	SupervisorID  uint       `gorm:"not null;index" json:"supervisor_id"`
	Status        string     `gorm:"size:16;not null;index" json:"status"`
	ApprovedAt    *time.Time `gorm:"index" json:"approved_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsApproved reports whether submissions may be made against the project.
func (p Project) IsApproved() bool {
	return p.Status == ProjectStatusApproved && p.ApprovedAt != nil
}

// CommitteeMember places an evaluator on a project's committee roster.
type CommitteeMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;uniqueIndex:idx_committee_project_evaluator,priority:1" json:"project_id"`
	EvaluatorID uint      `gorm:"not null;uniqueIndex:idx_committee_project_evaluator,priority:2" json:"evaluator_id"`
	CreatedAt   time.Time `json:"created_at"`
}
