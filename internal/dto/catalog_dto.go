package dto

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// DocumentTypeCreateRequest defines a required deliverable and its weights.
type DocumentTypeCreateRequest struct {
	Name             string `json:"name" validate:"required,min=2,max=128"`
	WeightSupervisor int    `json:"weight_supervisor" validate:"min=0,max=100"`
	WeightCommittee  int    `json:"weight_committee" validate:"min=0,max=100"`
	Active           *bool  `json:"active"`
}

// DocumentTypeResponse is the serialized representation of a document type.
type DocumentTypeResponse struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	WeightSupervisor int    `json:"weight_supervisor"`
	WeightCommittee  int    `json:"weight_committee"`
	Active           bool   `json:"active"`
}

// NewDocumentTypeResponse converts a model into a DTO.
func NewDocumentTypeResponse(model models.DocumentType) DocumentTypeResponse {
	return DocumentTypeResponse{
		ID:               model.ID,
		Name:             model.Name,
		WeightSupervisor: model.WeightSupervisor,
		WeightCommittee:  model.WeightCommittee,
		Active:           model.Active,
	}
}

// BatchCreateRequest defines a deadline batch window.
type BatchCreateRequest struct {
	Name         string    `json:"name" validate:"required,min=2,max=128"`
	ApprovedFrom time.Time `json:"approved_from" validate:"required"`
	ApprovedTo   time.Time `json:"approved_to" validate:"required,gtfield=ApprovedFrom"`
}

// BatchResponse is the serialized representation of a deadline batch.
type BatchResponse struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	ApprovedFrom time.Time `json:"approved_from"`
	ApprovedTo   time.Time `json:"approved_to"`
}

// NewBatchResponse converts a model into a DTO.
func NewBatchResponse(model models.DeadlineBatch) BatchResponse {
	return BatchResponse{
		ID:           model.ID,
		Name:         model.Name,
		ApprovedFrom: model.ApprovedFrom,
		ApprovedTo:   model.ApprovedTo,
	}
}

// DeadlineCreateRequest schedules a due date for a project or a batch.
type DeadlineCreateRequest struct {
	ProjectID      *uint     `json:"project_id" validate:"required_without=BatchID,excluded_with=BatchID"`
	BatchID        *uint     `json:"batch_id" validate:"required_without=ProjectID"`
	DocumentTypeID uint      `json:"document_type_id" validate:"required"`
	DueAt          time.Time `json:"due_at" validate:"required"`
}

// DeadlineResponse is the serialized representation of a deadline.
type DeadlineResponse struct {
	ID             uint       `json:"id"`
	ProjectID      *uint      `json:"project_id,omitempty"`
	BatchID        *uint      `json:"batch_id,omitempty"`
	DocumentTypeID uint       `json:"document_type_id"`
	DueAt          time.Time  `json:"due_at"`
	Locked         bool       `json:"locked"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// NewDeadlineResponse converts a model into a DTO.
func NewDeadlineResponse(model models.Deadline) DeadlineResponse {
	return DeadlineResponse{
		ID:             model.ID,
		ProjectID:      model.ProjectID,
		BatchID:        model.BatchID,
		DocumentTypeID: model.DocumentTypeID,
		DueAt:          model.DueAt,
		Locked:         model.Locked,
		ProcessedAt:    model.ProcessedAt,
	}
}
