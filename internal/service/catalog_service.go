package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// CatalogService manages document types, deadline batches and deadlines.
type CatalogService interface {
	CreateDocumentType(ctx context.Context, payload dto.DocumentTypeCreateRequest) (dto.DocumentTypeResponse, error)
	ListDocumentTypes(ctx context.Context, activeOnly bool) ([]dto.DocumentTypeResponse, error)
	CreateBatch(ctx context.Context, payload dto.BatchCreateRequest) (dto.BatchResponse, error)
	ListBatches(ctx context.Context) ([]dto.BatchResponse, error)
	CreateDeadline(ctx context.Context, payload dto.DeadlineCreateRequest) (dto.DeadlineResponse, error)
	ListDeadlines(ctx context.Context, filter repository.DeadlineFilter) ([]dto.DeadlineResponse, error)
}

type catalogService struct {
	documentTypes repository.DocumentTypeRepository
	deadlines     repository.DeadlineRepository
	projects      repository.ProjectRepository
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(documentTypes repository.DocumentTypeRepository, deadlines repository.DeadlineRepository, projects repository.ProjectRepository, validate *validator.Validate, logger zerolog.Logger) CatalogService {
	return &catalogService{
		documentTypes: documentTypes,
		deadlines:     deadlines,
		projects:      projects,
		validator:     validate,
		logger:        logger.With().Str("component", "catalog_service").Logger(),
	}
}

func (s *catalogService) CreateDocumentType(ctx context.Context, payload dto.DocumentTypeCreateRequest) (dto.DocumentTypeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DocumentTypeResponse{}, invalid(err)
	}
	weights := workflow.Weights{Supervisor: payload.WeightSupervisor, Committee: payload.WeightCommittee}
	if err := weights.Validate(); err != nil {
		return dto.DocumentTypeResponse{}, err
	}

	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	model := models.DocumentType{
		Name:             strings.TrimSpace(payload.Name),
		WeightSupervisor: weights.Supervisor,
		WeightCommittee:  weights.Committee,
		Active:           active,
	}
	if err := s.documentTypes.Create(ctx, &model); err != nil {
		return dto.DocumentTypeResponse{}, err
	}

	s.logger.Info().Uint("document_type_id", model.ID).Str("name", model.Name).Msg("document type created")
	return dto.NewDocumentTypeResponse(model), nil
}

func (s *catalogService) ListDocumentTypes(ctx context.Context, activeOnly bool) ([]dto.DocumentTypeResponse, error) {
	items, err := s.documentTypes.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]dto.DocumentTypeResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NewDocumentTypeResponse(item))
	}
	return out, nil
}

func (s *catalogService) CreateBatch(ctx context.Context, payload dto.BatchCreateRequest) (dto.BatchResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BatchResponse{}, invalid(err)
	}

	batch := models.DeadlineBatch{
		Name:         strings.TrimSpace(payload.Name),
		ApprovedFrom: payload.ApprovedFrom.UTC(),
		ApprovedTo:   payload.ApprovedTo.UTC(),
	}
	if err := s.deadlines.CreateBatch(ctx, &batch); err != nil {
		return dto.BatchResponse{}, err
	}
	return dto.NewBatchResponse(batch), nil
}

func (s *catalogService) ListBatches(ctx context.Context) ([]dto.BatchResponse, error) {
	batches, err := s.deadlines.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BatchResponse, 0, len(batches))
	for _, batch := range batches {
		out = append(out, dto.NewBatchResponse(batch))
	}
	return out, nil
}

func (s *catalogService) CreateDeadline(ctx context.Context, payload dto.DeadlineCreateRequest) (dto.DeadlineResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DeadlineResponse{}, invalid(err)
	}

	if _, err := s.documentTypes.FindByID(ctx, payload.DocumentTypeID); err != nil {
		return dto.DeadlineResponse{}, notFound(err, ErrDocumentTypeNotFound)
	}
	if payload.ProjectID != nil {
		if _, err := s.projects.FindByID(ctx, *payload.ProjectID); err != nil {
			return dto.DeadlineResponse{}, notFound(err, ErrProjectNotFound)
		}
	}
	if payload.BatchID != nil {
		if _, err := s.deadlines.FindBatch(ctx, *payload.BatchID); err != nil {
			return dto.DeadlineResponse{}, notFound(err, ErrBatchNotFound)
		}
	}

	deadline := models.Deadline{
		ProjectID:      payload.ProjectID,
		BatchID:        payload.BatchID,
		DocumentTypeID: payload.DocumentTypeID,
		DueAt:          payload.DueAt.UTC(),
	}
	if err := s.deadlines.Create(ctx, &deadline); err != nil {
		return dto.DeadlineResponse{}, err
	}

	s.logger.Info().Uint("deadline_id", deadline.ID).Time("due_at", deadline.DueAt).Msg("deadline scheduled")
	return dto.NewDeadlineResponse(deadline), nil
}

func (s *catalogService) ListDeadlines(ctx context.Context, filter repository.DeadlineFilter) ([]dto.DeadlineResponse, error) {
	deadlines, err := s.deadlines.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]dto.DeadlineResponse, 0, len(deadlines))
	for _, deadline := range deadlines {
		out = append(out, dto.NewDeadlineResponse(deadline))
	}
	return out, nil
}
