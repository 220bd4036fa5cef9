package dto

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// MarkRequest records or finalizes a committee member's mark.
type MarkRequest struct {
	Score    *float64 `json:"score" validate:"required,min=0,max=100"`
	Comments string   `json:"comments" validate:"omitempty,max=5000"`
	Finalize bool     `json:"finalize"`
}

// SupervisorMarkResponse is the serialized supervisor mark.
type SupervisorMarkResponse struct {
	SupervisorID uint      `json:"supervisor_id"`
	Score        float64   `json:"score"`
	Comments     string    `json:"comments,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewSupervisorMarkResponse converts a model into a DTO. It returns nil for a nil mark.
func NewSupervisorMarkResponse(mark *models.SupervisorMark) *SupervisorMarkResponse {
	if mark == nil {
		return nil
	}
	return &SupervisorMarkResponse{
		SupervisorID: mark.SupervisorID,
		Score:        mark.Score,
		Comments:     mark.Comments,
		UpdatedAt:    mark.UpdatedAt,
	}
}

// EvaluationMarkResponse is the serialized committee mark.
type EvaluationMarkResponse struct {
	EvaluatorID uint       `json:"evaluator_id"`
	Score       float64    `json:"score"`
	Comments    string     `json:"comments,omitempty"`
	IsFinal     bool       `json:"is_final"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// NewEvaluationMarkResponse converts a model into a DTO.
func NewEvaluationMarkResponse(mark models.EvaluationMark) EvaluationMarkResponse {
	return EvaluationMarkResponse{
		EvaluatorID: mark.EvaluatorID,
		Score:       mark.Score,
		Comments:    mark.Comments,
		IsFinal:     mark.IsFinal,
		FinalizedAt: mark.FinalizedAt,
	}
}

// EvaluationSummaryResponse aggregates the committee marks of a submission.
type EvaluationSummaryResponse struct {
	SubmissionID uint                     `json:"submission_id"`
	Status       workflow.Status          `json:"status"`
	Total        int                      `json:"total"`
	Finalized    int                      `json:"finalized"`
	Average      *float64                 `json:"average"`
	Complete     bool                     `json:"complete"`
	Marks        []EvaluationMarkResponse `json:"marks"`
}

// NewEvaluationSummaryResponse builds the summary of marks for a submission.
func NewEvaluationSummaryResponse(submission models.Submission, marks []models.EvaluationMark, complete bool) EvaluationSummaryResponse {
	summary := workflow.Summarize(models.MarkStates(marks))
	response := EvaluationSummaryResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		Total:        summary.Total,
		Finalized:    summary.Finalized,
		Complete:     complete,
		Marks:        make([]EvaluationMarkResponse, 0, len(marks)),
	}
	if summary.HasFinal {
		average := summary.Average
		response.Average = &average
	}
	for _, mark := range marks {
		response.Marks = append(response.Marks, NewEvaluationMarkResponse(mark))
	}
	return response
}

// RecordMarkResponse is returned after a mark is recorded.
type RecordMarkResponse struct {
	Mark       EvaluationMarkResponse    `json:"mark"`
	Submission SubmissionResponse        `json:"submission"`
	Summary    EvaluationSummaryResponse `json:"summary"`
}
