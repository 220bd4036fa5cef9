package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/observability"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// SweepReport summarises one deadline sweep.
type SweepReport struct {
	Deadlines int `json:"deadlines"`
	Processed int `json:"processed"`
	Locked    int `json:"locked"`
	Skipped   int `json:"skipped"`
	Missed    int `json:"missed"`
	Failures  int `json:"failures"`
}

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeLocked
	outcomeMissed
)

// DeadlineProcessor force-locks submissions whose deadline has passed.
type DeadlineProcessor interface {
	// RunDeadlineSweep is safe to call repeatedly and concurrently; a
	// (deadline, project) pair is mutated at most once.
	RunDeadlineSweep(ctx context.Context) (SweepReport, error)
}

type deadlineProcessor struct {
	deps   WorkflowDeps
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewDeadlineProcessor constructs the deadline sweep.
func NewDeadlineProcessor(deps WorkflowDeps, logger zerolog.Logger) DeadlineProcessor {
	return &deadlineProcessor{
		deps:   deps.withDefaults(),
		logger: logger.With().Str("component", "deadline_processor").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/fyp-go-api/internal/service/deadline"),
	}
}

func (p *deadlineProcessor) RunDeadlineSweep(ctx context.Context) (SweepReport, error) {
	ctx, span := p.tracer.Start(ctx, "deadlines.sweep")
	defer span.End()

	started := time.Now()
	defer func() {
		observability.DeadlineSweepDuration().Observe(time.Since(started).Seconds())
	}()

	now := p.deps.Clock.Now()
	due, err := p.deps.Deadlines.ListDue(ctx, now)
	if err != nil {
		observability.DeadlineSweepRuns().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_due_failed")
		return SweepReport{}, err
	}

	var report SweepReport
	for _, deadline := range due {
		if ctx.Err() != nil {
			break
		}
		report.Deadlines++
		failures := p.processDeadline(ctx, deadline, now, &report)
		if failures > 0 {
			continue
		}
		if _, err := p.deps.Deadlines.MarkProcessed(ctx, deadline.ID, now); err != nil {
			report.Failures++
			p.logger.Error().Err(err).Uint("deadline_id", deadline.ID).Msg("failed to mark deadline processed")
		}
	}

	outcome := "ok"
	if report.Failures > 0 {
		outcome = "partial"
	}
	observability.DeadlineSweepRuns().WithLabelValues(outcome).Inc()

	span.SetAttributes(
		attribute.Int("sweep.deadlines", report.Deadlines),
		attribute.Int("sweep.locked", report.Locked),
		attribute.Int("sweep.failures", report.Failures),
	)
	p.logger.Info().
		Int("deadlines", report.Deadlines).
		Int("processed", report.Processed).
		Int("locked", report.Locked).
		Int("skipped", report.Skipped).
		Int("missed", report.Missed).
		Int("failures", report.Failures).
		Msg("deadline sweep finished")

	return report, ctx.Err()
}

// processDeadline handles every project in scope of deadline and returns the number of failures.
func (p *deadlineProcessor) processDeadline(ctx context.Context, deadline models.Deadline, now time.Time, report *SweepReport) int {
	log := p.logger.With().Uint("deadline_id", deadline.ID).Uint("document_type_id", deadline.DocumentTypeID).Logger()

	projects, err := p.scope(ctx, deadline)
	if err != nil {
		report.Failures++
		log.Error().Err(err).Msg("failed to resolve deadline scope")
		return 1
	}

	failures := 0
	for _, project := range projects {
		outcome, err := p.processProject(ctx, deadline, project, now)
		if err != nil {
			failures++
			report.Failures++
			log.Error().Err(err).Uint("project_id", project.ID).Msg("failed to process project at deadline")
			continue
		}
		report.Processed++
		switch outcome {
		case outcomeLocked:
			report.Locked++
		case outcomeMissed:
			report.Missed++
		default:
			report.Skipped++
		}
	}
	return failures
}

// scope lists the approved projects a deadline applies to. Batch deadlines
// exclude projects that carry their own deadline for the document type.
func (p *deadlineProcessor) scope(ctx context.Context, deadline models.Deadline) ([]models.Project, error) {
	if deadline.ProjectID != nil {
		project, err := p.deps.Projects.FindByID(ctx, *deadline.ProjectID)
		if err != nil {
			return nil, notFound(err, ErrProjectNotFound)
		}
		if !project.IsApproved() {
			return nil, nil
		}
		return []models.Project{project}, nil
	}

	if deadline.BatchID == nil {
		return nil, fmt.Errorf("deadline %d has neither project nor batch", deadline.ID)
	}
	batch, err := p.deps.Deadlines.FindBatch(ctx, *deadline.BatchID)
	if err != nil {
		return nil, notFound(err, ErrBatchNotFound)
	}
	candidates, err := p.deps.Projects.ListApprovedBetween(ctx, batch.ApprovedFrom, batch.ApprovedTo)
	if err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(candidates))
	for _, project := range candidates {
		own, err := p.deps.Deadlines.HasProjectDeadline(ctx, project.ID, deadline.DocumentTypeID)
		if err != nil {
			return nil, err
		}
		if !own {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

func (p *deadlineProcessor) processProject(ctx context.Context, deadline models.Deadline, project models.Project, now time.Time) (sweepOutcome, error) {
	var (
		outcome  sweepOutcome
		items    []Outbound
		decision workflow.Decision
	)

	err := retryOnConflict(ctx, p.deps.Options.MaxAttempts, "deadline.sweep", p.logger, func(ctx context.Context) error {
		outcome, items = outcomeSkipped, nil
		key := lock.SubmissionVersionKey(project.ID, deadline.DocumentTypeID)
		return withLock(ctx, p.deps.Locker, key, func() error {
			return p.deps.Tx.Transaction(ctx, func(txCtx context.Context) error {
				latest, err := p.deps.Submissions.Latest(txCtx, project.ID, deadline.DocumentTypeID)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					inserted, err := p.deps.Deadlines.RecordMiss(txCtx, deadline.ID, project.ID)
					if err != nil {
						return err
					}
					if inserted {
						outcome = outcomeMissed
						items = []Outbound{missedDeadline(deadline, project)}
					}
					return nil
				}
				if err != nil {
					return err
				}

				if latest.Status.IsLocked() {
					return nil
				}

				decision, err = workflow.Decide(latest.Status, workflow.ActionLock)
				if err != nil {
					return err
				}
				change := repository.SubmissionChange{
					IsFinal:        true,
					AutoLockReason: workflow.AutoLockReason(latest.Status),
					LockedAt:       &now,
				}
				reason := fmt.Sprintf("deadline %d passed", deadline.ID)
				if err := applyDecision(txCtx, p.deps.Submissions, &latest, decision, change, nil, reason, now); err != nil {
					return err
				}

				outcome = outcomeLocked
				items = outbound(latest, decision.Intents, map[string]interface{}{
					"deadline_id": deadline.ID,
					"auto_locked": true,
				})
				return nil
			})
		})
	})
	if err != nil {
		return outcomeSkipped, err
	}

	if outcome == outcomeLocked {
		countTransitions(decision)
		observability.DeadlineSubmissionsLocked().WithLabelValues(string(decision.From)).Inc()
	}
	p.deps.Publisher.Publish(ctx, items...)
	return outcome, nil
}

func missedDeadline(deadline models.Deadline, project models.Project) Outbound {
	return Outbound{
		ProjectID:      project.ID,
		DocumentTypeID: deadline.DocumentTypeID,
		Intent: workflow.Intent{
			Event:    workflow.EventDeadlineMissed,
			Audience: []workflow.Role{workflow.RoleGroupLeader, workflow.RoleSupervisor},
			Payload: map[string]interface{}{
				"deadline_id":      deadline.ID,
				"document_type_id": deadline.DocumentTypeID,
				"due_at":           deadline.DueAt.Format(time.RFC3339),
			},
		},
	}
}
