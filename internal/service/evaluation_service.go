package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// ResultComputer recomputes a project's draft final result.
type ResultComputer interface {
	ComputeFinalResult(ctx context.Context, projectID uint) (dto.FinalResultResponse, error)
}

// EvaluationService collects committee marks and closes evaluation when complete.
type EvaluationService interface {
	RecordMark(ctx context.Context, actor Actor, submissionID uint, payload dto.MarkRequest) (dto.RecordMarkResponse, error)
	Summary(ctx context.Context, submissionID uint) (dto.EvaluationSummaryResponse, error)
}

type evaluationService struct {
	deps      WorkflowDeps
	results   ResultComputer
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewEvaluationService constructs an EvaluationService. results may be nil.
func NewEvaluationService(deps WorkflowDeps, results ResultComputer, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		deps:      deps.withDefaults(),
		results:   results,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/fyp-go-api/internal/service/evaluation"),
	}
}

func (s *evaluationService) RecordMark(ctx context.Context, actor Actor, submissionID uint, payload dto.MarkRequest) (dto.RecordMarkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.record_mark", trace.WithAttributes(
		attribute.Int64("evaluation.submission_id", int64(submissionID)),
		attribute.Int64("evaluation.evaluator_id", int64(actor.ID)),
		attribute.Bool("evaluation.finalize", payload.Finalize),
	))
	defer span.End()

	fail := func(err error, status string) (dto.RecordMarkResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.RecordMarkResponse{}, err
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail(invalid(err), "validation_failed")
	}

	submission, err := s.deps.Submissions.FindByID(ctx, submissionID)
	if err != nil {
		return fail(notFound(err, ErrSubmissionNotFound), "submission_lookup_failed")
	}
	roster, err := s.deps.Projects.CommitteeIDs(ctx, submission.ProjectID)
	if err != nil {
		return fail(err, "roster_lookup_failed")
	}
	if err := s.authorize(actor, roster); err != nil {
		return fail(err, "forbidden")
	}

	comments := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comments))

	var (
		mark      models.EvaluationMark
		current   models.Submission
		marks     []models.EvaluationMark
		decisions []workflow.Decision
	)
	err = retryOnConflict(ctx, s.deps.Options.MaxAttempts, "evaluation.record_mark", s.logger, func(ctx context.Context) error {
		decisions = decisions[:0]
		return withLock(ctx, s.deps.Locker, lock.SubmissionKey(submissionID), func() error {
			return s.deps.Tx.Transaction(ctx, func(txCtx context.Context) error {
				var err error
				current, err = s.deps.Submissions.FindForUpdate(txCtx, submissionID)
				if err != nil {
					return notFound(err, ErrSubmissionNotFound)
				}
				if err := workflow.CheckRecordMark(current.Status); err != nil {
					return err
				}

				existing, err := s.deps.Marks.FindEvaluationMark(txCtx, submissionID, actor.ID)
				if err != nil {
					return err
				}
				if existing != nil && existing.IsFinal {
					return fmt.Errorf("evaluator %d on submission %d: %w", actor.ID, submissionID, workflow.ErrMarkFinalized)
				}

				now := s.deps.Clock.Now()
				mark = models.EvaluationMark{SubmissionID: submissionID, EvaluatorID: actor.ID}
				if existing != nil {
					mark = *existing
				}
				mark.Score = *payload.Score
				mark.Comments = comments
				if payload.Finalize {
					mark.IsFinal = true
					mark.FinalizedAt = &now
				}
				if err := s.deps.Marks.SaveEvaluationMark(txCtx, &mark); err != nil {
					return err
				}

				if current.Status == workflow.StatusLockedForEval {
					decision, err := workflow.Decide(current.Status, workflow.ActionStartEvaluation)
					if err != nil {
						return err
					}
					if err := applyDecision(txCtx, s.deps.Submissions, &current, decision, repository.SubmissionChange{}, actorRef(actor), "first evaluation mark recorded", now); err != nil {
						return err
					}
					decisions = append(decisions, decision)
				}

				marks, err = s.deps.Marks.ListEvaluationMarks(txCtx, submissionID)
				if err != nil {
					return err
				}

				if payload.Finalize && workflow.EvaluationComplete(s.deps.Options.CompletionPolicy, models.MarkStates(marks), roster) {
					decision, err := workflow.Decide(current.Status, workflow.ActionFinalizeEvaluation)
					if err != nil {
						return err
					}
					if err := applyDecision(txCtx, s.deps.Submissions, &current, decision, repository.SubmissionChange{}, actorRef(actor), "all evaluation marks finalized", now); err != nil {
						return err
					}
					decisions = append(decisions, decision)
				}
				return nil
			})
		})
	})
	if err != nil {
		return fail(err, "record_mark_failed")
	}

	countTransitions(decisions...)
	for _, decision := range decisions {
		s.deps.Publisher.Publish(ctx, outbound(current, decision.Intents, nil)...)
	}

	if current.Status == workflow.StatusEvalFinalized {
		s.recompute(ctx, current.ProjectID)
	}

	s.logger.Info().
		Uint("submission_id", submissionID).
		Uint("evaluator_id", actor.ID).
		Bool("final", mark.IsFinal).
		Str("status", string(current.Status)).
		Msg("evaluation mark recorded")

	complete := workflow.EvaluationComplete(s.deps.Options.CompletionPolicy, models.MarkStates(marks), roster)
	return dto.RecordMarkResponse{
		Mark:       dto.NewEvaluationMarkResponse(mark),
		Submission: dto.NewSubmissionResponse(current),
		Summary:    dto.NewEvaluationSummaryResponse(current, marks, complete),
	}, nil
}

func (s *evaluationService) authorize(actor Actor, roster []uint) error {
	for _, id := range roster {
		if id == actor.ID {
			return nil
		}
	}
	if s.deps.Options.CompletionPolicy == workflow.CompletionRoster {
		return workflow.ErrEvaluatorNotAssigned
	}
	if actor.Role == models.RoleCommittee {
		return nil
	}
	return ErrForbidden
}

func (s *evaluationService) recompute(ctx context.Context, projectID uint) {
	if s.results == nil {
		return
	}
	if _, err := s.results.ComputeFinalResult(ctx, projectID); err != nil {
		if errors.Is(err, workflow.ErrResultReleased) {
			s.logger.Debug().Uint("project_id", projectID).Msg("final result already released; not recomputed")
			return
		}
		s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("failed to recompute final result")
	}
}

func (s *evaluationService) Summary(ctx context.Context, submissionID uint) (dto.EvaluationSummaryResponse, error) {
	submission, err := s.deps.Submissions.FindByID(ctx, submissionID)
	if err != nil {
		return dto.EvaluationSummaryResponse{}, notFound(err, ErrSubmissionNotFound)
	}
	return evaluationSummary(ctx, s.deps, submission)
}
