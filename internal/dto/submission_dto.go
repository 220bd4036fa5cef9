package dto

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// Review decisions accepted from supervisors.
const (
	ReviewDecisionApprove = "approve"
	ReviewDecisionRevise  = "revise"
)

// SubmissionCreateRequest is the multipart form accompanying an uploaded document.
type SubmissionCreateRequest struct {
	ProjectID      uint   `form:"project_id" validate:"required"`
	DocumentTypeID uint   `form:"document_type_id" validate:"required"`
	Comments       string `form:"comments" validate:"omitempty,max=5000"`
}

// SubmissionReviewRequest is a supervisor's decision on a submission.
type SubmissionReviewRequest struct {
	Decision string   `json:"decision" validate:"required,oneof=approve revise"`
	Feedback string   `json:"feedback" validate:"omitempty,max=5000"`
	Score    *float64 `json:"score" validate:"omitempty,min=0,max=100"`
	Comments string   `json:"comments" validate:"omitempty,max=5000"`
}

// Approve reports whether the request approves the submission.
func (r SubmissionReviewRequest) Approve() bool {
	return r.Decision == ReviewDecisionApprove
}

// SubmissionResponse is the serialized representation of a submission.
type SubmissionResponse struct {
	ID                   uint            `json:"id"`
	ProjectID            uint            `json:"project_id"`
	DocumentTypeID       uint            `json:"document_type_id"`
	Version              int             `json:"version"`
	Status               workflow.Status `json:"status"`
	IsFinal              bool            `json:"is_final"`
	FileID               string          `json:"file_id"`
	FileName             string          `json:"file_name"`
	Comments             string          `json:"comments"`
	Feedback             string          `json:"feedback,omitempty"`
	AutoLockReason       string          `json:"auto_lock_reason,omitempty"`
	UploadedBy           uint            `json:"uploaded_by"`
	UploadedAt           time.Time       `json:"uploaded_at"`
	SupervisorReviewedAt *time.Time      `json:"supervisor_reviewed_at,omitempty"`
	LockedAt             *time.Time      `json:"locked_at,omitempty"`
}

// NewSubmissionResponse converts a model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:                   model.ID,
		ProjectID:            model.ProjectID,
		DocumentTypeID:       model.DocumentTypeID,
		Version:              model.Version,
		Status:               model.Status,
		IsFinal:              model.IsFinal,
		FileID:               model.FileID,
		FileName:             model.FileName,
		Comments:             model.Comments,
		Feedback:             model.Feedback,
		AutoLockReason:       model.AutoLockReason,
		UploadedBy:           model.UploadedBy,
		UploadedAt:           model.UploadedAt,
		SupervisorReviewedAt: model.SupervisorReviewedAt,
		LockedAt:             model.LockedAt,
	}
}

// FileResponse describes a stored document resolved from the asset host.
type FileResponse struct {
	ID       string                 `json:"id"`
	URL      string                 `json:"url"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StatusHistoryResponse is one lifecycle transition of a submission.
type StatusHistoryResponse struct {
	FromStatus workflow.Status `json:"from_status"`
	ToStatus   workflow.Status `json:"to_status"`
	Action     workflow.Action `json:"action"`
	ActorID    *uint           `json:"actor_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	At         time.Time       `json:"at"`
}

// NewStatusHistoryResponses converts history rows into DTOs.
func NewStatusHistoryResponses(entries []models.SubmissionStatusHistory) []StatusHistoryResponse {
	out := make([]StatusHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, StatusHistoryResponse{
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			Action:     entry.Action,
			ActorID:    entry.ActorID,
			Reason:     entry.Reason,
			At:         entry.CreatedAt,
		})
	}
	return out
}

// SubmissionViewResponse is the full view of a submission for reviewers.
type SubmissionViewResponse struct {
	Submission     SubmissionResponse        `json:"submission"`
	File           *FileResponse             `json:"file,omitempty"`
	SupervisorMark *SupervisorMarkResponse   `json:"supervisor_mark,omitempty"`
	Evaluation     EvaluationSummaryResponse `json:"evaluation"`
	History        []StatusHistoryResponse   `json:"history"`
}
