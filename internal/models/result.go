package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// FinalResult states. A project without a row is uncomputed.
const (
	ResultStatusComputed = "computed"
	ResultStatusReleased = "released"
)

// FinalResult is a project's weighted total; frozen once released.
type FinalResult struct {
	ID         uint                                         `gorm:"primaryKey" json:"id"`
	ProjectID  uint                                         `gorm:"not null;uniqueIndex" json:"project_id"`
	TotalScore float64                                      `gorm:"not null" json:"total_score"`
	Breakdown  datatypes.JSONSlice[workflow.ScoreComponent] `gorm:"type:json" json:"breakdown"`
	Status     string                                       `gorm:"size:16;not null;index" json:"status"`
	Released   bool                                         `gorm:"not null" json:"released"`
	ReleasedAt *time.Time                                   `json:"released_at,omitempty"`
	ReleasedBy *uint                                        `json:"released_by,omitempty"`
	ComputedAt time.Time                                    `gorm:"not null" json:"computed_at"`
	CreatedAt  time.Time                                    `json:"created_at"`
	UpdatedAt  time.Time                                    `json:"updated_at"`
}
