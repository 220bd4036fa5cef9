package dto

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// FinalResultResponse is the serialized project final result.
type FinalResultResponse struct {
	ProjectID  uint                      `json:"project_id"`
	Status     string                    `json:"status"`
	TotalScore float64                   `json:"total_score"`
	Breakdown  []workflow.ScoreComponent `json:"breakdown"`
	Released   bool                      `json:"released"`
	ReleasedAt *time.Time                `json:"released_at,omitempty"`
	ComputedAt time.Time                 `json:"computed_at"`
	CacheHit   bool                      `json:"cache_hit"`
}

// NewFinalResultResponse converts a model into a DTO.
func NewFinalResultResponse(model models.FinalResult) FinalResultResponse {
	breakdown := []workflow.ScoreComponent(model.Breakdown)
	if breakdown == nil {
		breakdown = []workflow.ScoreComponent{}
	}
	return FinalResultResponse{
		ProjectID:  model.ProjectID,
		Status:     model.Status,
		TotalScore: model.TotalScore,
		Breakdown:  breakdown,
		Released:   model.Released,
		ReleasedAt: model.ReleasedAt,
		ComputedAt: model.ComputedAt,
	}
}
