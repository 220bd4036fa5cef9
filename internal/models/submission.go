package models

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// Submission is one uploaded version of a document for a project.
// (ProjectID, DocumentTypeID, Version) is unique; LockVersion guards concurrent transitions.
type Submission struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	ProjectID            uint            `gorm:"not null;uniqueIndex:idx_submission_version,priority:1" json:"project_id"`
	DocumentTypeID       uint            `gorm:"not null;uniqueIndex:idx_submission_version,priority:2" json:"document_type_id"`
	Version              int             `gorm:"not null;uniqueIndex:idx_submission_version,priority:3" json:"version"`
	Status               workflow.Status `gorm:"size:32;not null;index" json:"status"`
	IsFinal              bool            `gorm:"not null" json:"is_final"`
	FileID               string          `gorm:"size:255" json:"file_id"`
	FileName             string          `gorm:"size:255" json:"file_name"`
	Comments             string          `gorm:"type:text" json:"comments"`
	Feedback             string          `gorm:"type:text" json:"feedback"`
	AutoLockReason       string          `gorm:"size:255" json:"auto_lock_reason,omitempty"`
	UploadedBy           uint            `gorm:"not null" json:"uploaded_by"`
	UploadedAt           time.Time       `gorm:"not null" json:"uploaded_at"`
	SupervisorReviewedAt *time.Time      `json:"supervisor_reviewed_at,omitempty"`
	LockedAt             *time.Time      `json:"locked_at,omitempty"`
	LockVersion          int             `gorm:"not null" json:"-"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// SubmissionStatusHistory is an append-only audit of lifecycle transitions.
type SubmissionStatusHistory struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	SubmissionID uint            `gorm:"not null;index" json:"submission_id"`
	FromStatus   workflow.Status `gorm:"size:32" json:"from_status"`
	ToStatus     workflow.Status `gorm:"size:32;not null" json:"to_status"`
	Action       workflow.Action `gorm:"size:32;not null" json:"action"`
	ActorID      *uint           `json:"actor_id,omitempty"`
	Reason       string          `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SupervisorMark is the single supervisor score for a submission.
type SupervisorMark struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex" json:"submission_id"`
	SupervisorID uint      `gorm:"not null;index" json:"supervisor_id"`
	Score        float64   `gorm:"not null" json:"score"`
	Comments     string    `gorm:"type:text" json:"comments"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EvaluationMark is one committee member's score for a submission.
type EvaluationMark struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubmissionID uint       `gorm:"not null;uniqueIndex:idx_evaluation_mark,priority:1" json:"submission_id"`
	EvaluatorID  uint       `gorm:"not null;uniqueIndex:idx_evaluation_mark,priority:2" json:"evaluator_id"`
	Score        float64    `gorm:"not null" json:"score"`
	Comments     string     `gorm:"type:text" json:"comments"`
	IsFinal      bool       `gorm:"not null" json:"is_final"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MarkStates projects marks onto the shape the completion policy reads.
func MarkStates(marks []EvaluationMark) []workflow.MarkState {
	out := make([]workflow.MarkState, 0, len(marks))
	for _, mark := range marks {
		out = append(out, workflow.MarkState{EvaluatorID: mark.EvaluatorID, Score: mark.Score, Final: mark.IsFinal})
	}
	return out
}
