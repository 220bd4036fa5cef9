package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/observability"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

const resultCachePrefix = "fyp:result:"

// ScoringService computes, releases and serves project final results.
type ScoringService interface {
	ResultComputer
	Release(ctx context.Context, actor Actor, projectID uint) (dto.FinalResultResponse, error)
	Get(ctx context.Context, projectID uint) (dto.FinalResultResponse, error)
}

type scoringService struct {
	deps     WorkflowDeps
	cache    *redis.Client
	cacheTTL time.Duration
	activity ActivityRecorder
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewScoringService constructs a ScoringService. cache and activity may be nil.
func NewScoringService(deps WorkflowDeps, cache *redis.Client, cacheTTL time.Duration, activity ActivityRecorder, logger zerolog.Logger) ScoringService {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &scoringService{
		deps:     deps.withDefaults(),
		cache:    cache,
		cacheTTL: cacheTTL,
		activity: activity,
		logger:   logger.With().Str("component", "scoring_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/fyp-go-api/internal/service/scoring"),
	}
}

// ComputeFinalResult aggregates the relevant submission of every active
// document type. A computed result is overwritten; a released one is never touched.
func (s *scoringService) ComputeFinalResult(ctx context.Context, projectID uint) (dto.FinalResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "results.compute", trace.WithAttributes(attribute.Int64("result.project_id", int64(projectID))))
	defer span.End()

	if _, err := s.deps.Projects.FindByID(ctx, projectID); err != nil {
		err = notFound(err, ErrProjectNotFound)
		span.RecordError(err)
		return dto.FinalResultResponse{}, err
	}

	var result models.FinalResult
	err := retryOnConflict(ctx, s.deps.Options.MaxAttempts, "result.compute", s.logger, func(ctx context.Context) error {
		return withLock(ctx, s.deps.Locker, lock.FinalResultKey(projectID), func() error {
			return s.deps.Tx.Transaction(ctx, func(txCtx context.Context) error {
				existing, err := s.deps.Results.FindByProject(txCtx, projectID)
				found := err == nil
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				if found && existing.Released {
					return fmt.Errorf("project %d: %w", projectID, workflow.ErrResultReleased)
				}

				inputs, err := s.scoreInputs(txCtx, projectID)
				if err != nil {
					return err
				}
				total, components := workflow.ComputeTotal(inputs)

				result = existing
				result.ProjectID = projectID
				result.TotalScore = total
				result.Breakdown = datatypes.JSONSlice[workflow.ScoreComponent](components)
				result.Status = models.ResultStatusComputed
				result.ComputedAt = s.deps.Clock.Now()

				if !found {
					return s.deps.Results.Create(txCtx, &result)
				}
				updated, err := s.deps.Results.UpdateComputed(txCtx, &result)
				if err != nil {
					return err
				}
				if !updated {
					return fmt.Errorf("project %d: %w", projectID, workflow.ErrResultReleased)
				}
				return nil
			})
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute_failed")
		return dto.FinalResultResponse{}, err
	}

	span.SetAttributes(attribute.Float64("result.total_score", result.TotalScore))
	s.logger.Info().Uint("project_id", projectID).Float64("total_score", result.TotalScore).Msg("final result computed")
	return dto.NewFinalResultResponse(result), nil
}

func (s *scoringService) scoreInputs(ctx context.Context, projectID uint) ([]workflow.ScoreInput, error) {
	documentTypes, err := s.deps.DocumentTypes.List(ctx, true)
	if err != nil {
		return nil, err
	}

	inputs := make([]workflow.ScoreInput, 0, len(documentTypes))
	for _, documentType := range documentTypes {
		input := workflow.ScoreInput{
			DocumentTypeID:   documentType.ID,
			DocumentTypeName: documentType.Name,
			Weights:          workflow.Weights{Supervisor: documentType.WeightSupervisor, Committee: documentType.WeightCommittee},
		}

		submission, err := s.deps.Submissions.Relevant(ctx, projectID, documentType.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			inputs = append(inputs, input)
			continue
		}
		if err != nil {
			return nil, err
		}
		submissionID := submission.ID
		input.SubmissionID = &submissionID

		supervisorMark, err := s.deps.Marks.FindSupervisorMark(ctx, submission.ID)
		if err != nil {
			return nil, err
		}
		if supervisorMark != nil {
			score := supervisorMark.Score
			input.SupervisorScore = &score
		}

		marks, err := s.deps.Marks.ListEvaluationMarks(ctx, submission.ID)
		if err != nil {
			return nil, err
		}
		input.CommitteeScores = models.MarkStates(marks)

		inputs = append(inputs, input)
	}
	return inputs, nil
}

// Release freezes a computed result. Exactly one concurrent caller wins.
func (s *scoringService) Release(ctx context.Context, actor Actor, projectID uint) (dto.FinalResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "results.release", trace.WithAttributes(
		attribute.Int64("result.project_id", int64(projectID)),
		attribute.Int64("result.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if !actor.IsStaff() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.FinalResultResponse{}, ErrForbidden
	}

	var result models.FinalResult
	err := withLock(ctx, s.deps.Locker, lock.FinalResultKey(projectID), func() error {
		released, err := s.deps.Results.Release(ctx, projectID, actor.ID, s.deps.Clock.Now())
		if err != nil {
			return err
		}

		current, err := s.deps.Results.FindByProject(ctx, projectID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("project %d: %w", projectID, workflow.ErrResultNotComputed)
		}
		if err != nil {
			return err
		}
		if !released {
			return fmt.Errorf("project %d: %w", projectID, workflow.ErrResultReleased)
		}
		result = current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release_failed")
		return dto.FinalResultResponse{}, err
	}

	response := dto.NewFinalResultResponse(result)
	s.store(ctx, response)
	observability.ResultsReleased().Inc()

	if s.activity != nil {
		entityID := projectID
		if _, err := s.activity.Record(ctx, ActivityEntry{
			Actor:      actor,
			Action:     "result.released",
			EntityType: "final_result",
			EntityID:   &entityID,
			Metadata:   map[string]interface{}{"total_score": result.TotalScore},
		}); err != nil {
			s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("failed to record release activity")
		}
	}

	s.deps.Publisher.Publish(ctx, Outbound{
		ProjectID: projectID,
		Intent: workflow.Intent{
			Event:    workflow.EventFinalResultReleased,
			Audience: []workflow.Role{workflow.RoleGroupLeader, workflow.RoleSupervisor},
			Payload:  map[string]interface{}{"total_score": result.TotalScore},
		},
	})

	s.logger.Info().Uint("project_id", projectID).Uint("actor_id", actor.ID).Msg("final result released")
	return response, nil
}

// Get serves a project's result. Released results come from the cache when present.
func (s *scoringService) Get(ctx context.Context, projectID uint) (dto.FinalResultResponse, error) {
	if cached, ok := s.load(ctx, projectID); ok {
		cached.CacheHit = true
		return cached, nil
	}

	result, err := s.deps.Results.FindByProject(ctx, projectID)
	if err != nil {
		return dto.FinalResultResponse{}, notFound(err, ErrResultNotFound)
	}

	response := dto.NewFinalResultResponse(result)
	if result.Released {
		s.store(ctx, response)
	}
	return response, nil
}

func (s *scoringService) cacheKey(projectID uint) string {
	return fmt.Sprintf("%s%d", resultCachePrefix, projectID)
}

func (s *scoringService) load(ctx context.Context, projectID uint) (dto.FinalResultResponse, bool) {
	if s.cache == nil {
		return dto.FinalResultResponse{}, false
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(projectID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("failed to read result cache")
		}
		return dto.FinalResultResponse{}, false
	}
	var response dto.FinalResultResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("invalid cached result")
		return dto.FinalResultResponse{}, false
	}
	return response, true
}

func (s *scoringService) store(ctx context.Context, response dto.FinalResultResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(response.ProjectID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("project_id", response.ProjectID).Msg("failed to cache released result")
	}
}
