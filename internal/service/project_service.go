package service

import (
	"context"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/repository"
)

// ProjectService registers projects, decides on them and manages committee rosters.
type ProjectService interface {
	Register(ctx context.Context, payload dto.ProjectCreateRequest) (dto.ProjectResponse, error)
	Get(ctx context.Context, id uint) (dto.ProjectResponse, error)
	Approve(ctx context.Context, actor Actor, id uint) (dto.ProjectResponse, error)
	Reject(ctx context.Context, actor Actor, id uint) (dto.ProjectResponse, error)
	AssignCommittee(ctx context.Context, actor Actor, id uint, payload dto.CommitteeAssignRequest) (dto.ProjectResponse, error)
}

type projectService struct {
	tx        repository.Transactor
	projects  repository.ProjectRepository
	activity  ActivityRecorder
	validator *validator.Validate
	clock     Clock
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewProjectService constructs the project service. activity may be nil.
func NewProjectService(tx repository.Transactor, projects repository.ProjectRepository, activity ActivityRecorder, validate *validator.Validate, clock Clock, logger zerolog.Logger) ProjectService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &projectService{
		tx:        tx,
		projects:  projects,
		activity:  activity,
		validator: validate,
		clock:     clock,
		logger:    logger.With().Str("component", "project_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/fyp-go-api/internal/service/project"),
	}
}

func (s *projectService) Register(ctx context.Context, payload dto.ProjectCreateRequest) (dto.ProjectResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProjectResponse{}, invalid(err)
	}

	project := models.Project{
		Title:         strings.TrimSpace(payload.Title),
		Description:   strings.TrimSpace(payload.Description),
		GroupLeaderID: payload.GroupLeaderID,
		SupervisorID:  payload.SupervisorID,
		Status:        models.ProjectStatusPending,
	}
	if err := s.projects.Create(ctx, &project); err != nil {
		return dto.ProjectResponse{}, err
	}

	s.logger.Info().Uint("project_id", project.ID).Msg("project registered")
	return dto.NewProjectResponse(project, nil), nil
}

func (s *projectService) Get(ctx context.Context, id uint) (dto.ProjectResponse, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return dto.ProjectResponse{}, notFound(err, ErrProjectNotFound)
	}
	committee, err := s.projects.CommitteeIDs(ctx, id)
	if err != nil {
		return dto.ProjectResponse{}, err
	}
	return dto.NewProjectResponse(project, committee), nil
}

func (s *projectService) Approve(ctx context.Context, actor Actor, id uint) (dto.ProjectResponse, error) {
	return s.decide(ctx, actor, id, models.ProjectStatusApproved)
}

func (s *projectService) Reject(ctx context.Context, actor Actor, id uint) (dto.ProjectResponse, error) {
	return s.decide(ctx, actor, id, models.ProjectStatusRejected)
}

func (s *projectService) decide(ctx context.Context, actor Actor, id uint, status string) (dto.ProjectResponse, error) {
	ctx, span := s.tracer.Start(ctx, "projects.decide", trace.WithAttributes(
		attribute.Int64("project.id", int64(id)),
		attribute.String("project.status", status),
	))
	defer span.End()

	if !actor.IsStaff() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.ProjectResponse{}, ErrForbidden
	}

	var project models.Project
	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		current, err := s.projects.FindByID(txCtx, id)
		if err != nil {
			return notFound(err, ErrProjectNotFound)
		}
		if current.Status != models.ProjectStatusPending {
			return ErrProjectNotPending
		}

		approvedAt := current.ApprovedAt
		if status == models.ProjectStatusApproved {
			now := s.clock.Now()
			approvedAt = &now
		}
		if err := s.projects.UpdateStatus(txCtx, id, status, approvedAt); err != nil {
			return err
		}
		current.Status = status
		current.ApprovedAt = approvedAt
		project = current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "project_decision_failed")
		return dto.ProjectResponse{}, err
	}

	s.record(ctx, actor, "project."+status, project.ID, nil)
	s.logger.Info().Uint("project_id", project.ID).Str("status", status).Msg("project decided")

	committee, err := s.projects.CommitteeIDs(ctx, project.ID)
	if err != nil {
		return dto.ProjectResponse{}, err
	}
	return dto.NewProjectResponse(project, committee), nil
}

func (s *projectService) AssignCommittee(ctx context.Context, actor Actor, id uint, payload dto.CommitteeAssignRequest) (dto.ProjectResponse, error) {
	if !actor.IsStaff() {
		return dto.ProjectResponse{}, ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProjectResponse{}, invalid(err)
	}

	evaluators := uniqueIDs(payload.EvaluatorIDs)

	var project models.Project
	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		var err error
		project, err = s.projects.FindByID(txCtx, id)
		if err != nil {
			return notFound(err, ErrProjectNotFound)
		}
		return s.projects.ReplaceCommittee(txCtx, id, evaluators)
	})
	if err != nil {
		return dto.ProjectResponse{}, err
	}

	s.record(ctx, actor, "project.committee_assigned", id, map[string]interface{}{"evaluator_ids": evaluators})
	return dto.NewProjectResponse(project, evaluators), nil
}

func (s *projectService) record(ctx context.Context, actor Actor, action string, projectID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	entityID := projectID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: "project",
		EntityID:   &entityID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("failed to record project activity")
	}
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
