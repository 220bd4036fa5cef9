package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
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

var allowedDocumentTypes = []string{
	"application/pdf",
	"application/zip",
	"application/x-zip-compressed",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// SubmissionService drives a submission from upload through supervisor review to lock.
type SubmissionService interface {
	Create(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	Review(ctx context.Context, actor Actor, id uint, payload dto.SubmissionReviewRequest) (dto.SubmissionResponse, error)
	LockForEvaluation(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionViewResponse, error)
	History(ctx context.Context, id uint) ([]dto.StatusHistoryResponse, error)
	Versions(ctx context.Context, projectID, documentTypeID uint) ([]dto.SubmissionResponse, error)
}

type submissionService struct {
	deps      WorkflowDeps
	allocator VersionAllocator
	uploader  FileUploader
	storage   FileStoragePort
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewSubmissionService constructs a SubmissionService. storage may be nil.
func NewSubmissionService(deps WorkflowDeps, uploader FileUploader, storage FileStoragePort, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	deps = deps.withDefaults()
	return &submissionService{
		deps:      deps,
		allocator: NewVersionAllocator(deps.Tx, deps.Submissions, deps.Locker),
		uploader:  uploader,
		storage:   storage,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "submission_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/fyp-go-api/internal/service/submission"),
	}
}

func (s *submissionService) Create(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.create", trace.WithAttributes(
		attribute.Int64("submission.project_id", int64(payload.ProjectID)),
		attribute.Int64("submission.document_type_id", int64(payload.DocumentTypeID)),
	))
	defer span.End()

	fail := func(err error, status string) (dto.SubmissionResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.SubmissionResponse{}, err
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail(invalid(err), "validation_failed")
	}
	if file == nil {
		return fail(workflow.Invalid("file", "is required"), "validation_failed")
	}
	if file.Size > s.deps.Options.UploadMaxBytes {
		return fail(workflow.Invalid("file", fmt.Sprintf("exceeds %d bytes", s.deps.Options.UploadMaxBytes)), "validation_failed")
	}

	project, err := s.deps.Projects.FindByID(ctx, payload.ProjectID)
	if err != nil {
		return fail(notFound(err, ErrProjectNotFound), "project_lookup_failed")
	}
	if actor.ID != project.GroupLeaderID && !actor.IsStaff() {
		return fail(ErrForbidden, "forbidden")
	}
	if !project.IsApproved() {
		return fail(workflow.ErrProjectNotApproved, "project_not_approved")
	}

	documentType, err := s.deps.DocumentTypes.FindByID(ctx, payload.DocumentTypeID)
	if err != nil {
		return fail(notFound(err, ErrDocumentTypeNotFound), "document_type_lookup_failed")
	}
	if !documentType.Active {
		return fail(ErrDocumentTypeInactive, "document_type_inactive")
	}

	deadline, err := s.deps.Deadlines.Applicable(ctx, project, documentType.ID)
	if err != nil {
		return fail(err, "deadline_lookup_failed")
	}
	if deadline != nil && workflow.PastDue(s.deps.Clock.Now(), &deadline.DueAt) {
		return fail(workflow.Violation(workflow.StatusNone, workflow.ActionCreate, workflow.ErrDeadlinePassed), "deadline_passed")
	}

	hasFinal, err := s.deps.Submissions.HasFinal(ctx, project.ID, documentType.ID)
	if err != nil {
		return fail(err, "final_lookup_failed")
	}
	if hasFinal {
		return fail(workflow.Violation(workflow.StatusNone, workflow.ActionCreate, workflow.ErrFinalSubmissionExists), "final_exists")
	}

	fileID, err := s.store(ctx, file)
	if err != nil {
		return fail(err, "upload_failed")
	}

	comments := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comments))

	var (
		created  models.Submission
		decision workflow.Decision
	)
	err = retryOnConflict(ctx, s.deps.Options.MaxAttempts, "submission.create", s.logger, func(ctx context.Context) error {
		_, err := s.allocator.Allocate(ctx, project.ID, documentType.ID, func(txCtx context.Context, version int) error {
			hasFinal, err := s.deps.Submissions.HasFinal(txCtx, project.ID, documentType.ID)
			if err != nil {
				return err
			}
			if hasFinal {
				return workflow.Violation(workflow.StatusNone, workflow.ActionCreate, workflow.ErrFinalSubmissionExists)
			}

			decision, err = workflow.Decide(workflow.StatusNone, workflow.ActionCreate)
			if err != nil {
				return err
			}

			now := s.deps.Clock.Now()
			created = models.Submission{
				ProjectID:      project.ID,
				DocumentTypeID: documentType.ID,
				Version:        version,
				Status:         decision.To,
				FileID:         fileID,
				FileName:       file.Filename,
				Comments:       comments,
				UploadedBy:     actor.ID,
				UploadedAt:     now,
			}
			if err := s.deps.Submissions.Create(txCtx, &created); err != nil {
				return err
			}
			return s.deps.Submissions.AppendHistory(txCtx, &models.SubmissionStatusHistory{
				SubmissionID: created.ID,
				FromStatus:   decision.From,
				ToStatus:     decision.To,
				Action:       decision.Action,
				ActorID:      actorRef(actor),
				CreatedAt:    now,
			})
		})
		return err
	})
	if err != nil {
		s.discard(fileID)
		return fail(err, "submission_create_failed")
	}

	countTransitions(decision)
	s.deps.Publisher.Publish(ctx, outbound(created, decision.Intents, nil)...)

	span.SetAttributes(attribute.Int("submission.version", created.Version))
	s.logger.Info().
		Uint("submission_id", created.ID).
		Uint("project_id", created.ProjectID).
		Int("version", created.Version).
		Msg("submission created")

	return dto.NewSubmissionResponse(created), nil
}

func (s *submissionService) store(ctx context.Context, file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}
	if !isAllowedDocument(mime) {
		return "", workflow.Invalid("file", fmt.Sprintf("unsupported file type %s", mime.String()))
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind file: %w", err)
	}

	fileID, err := s.uploader.Upload(ctx, file.Filename, reader)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return fileID, nil
}

// discard removes an upload whose submission row was never committed.
func (s *submissionService) discard(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.uploader.Remove(ctx, fileID); err != nil {
		s.logger.Warn().Err(err).Str("file_id", fileID).Msg("failed to remove orphaned upload")
	}
}

func isAllowedDocument(mime *mimetype.MIME) bool {
	for _, allowed := range allowedDocumentTypes {
		if mime.Is(allowed) {
			return true
		}
	}
	return false
}

func (s *submissionService) Review(ctx context.Context, actor Actor, id uint, payload dto.SubmissionReviewRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.review", trace.WithAttributes(
		attribute.Int64("submission.id", int64(id)),
		attribute.String("review.decision", payload.Decision),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, invalid(err)
	}

	submission, project, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}
	if actor.ID != project.SupervisorID {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, ErrForbidden
	}

	deadline, err := s.deps.Deadlines.Applicable(ctx, project, submission.DocumentTypeID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	dueAt := deadlineDue(deadline)

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))
	comments := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comments))
	action := workflow.ActionApprove
	if !payload.Approve() {
		action = workflow.ActionRequestRevision
	}

	var (
		result   models.Submission
		decision workflow.Decision
	)
	err = retryOnConflict(ctx, s.deps.Options.MaxAttempts, "submission.review", s.logger, func(ctx context.Context) error {
		key := lock.SubmissionVersionKey(submission.ProjectID, submission.DocumentTypeID)
		return withLock(ctx, s.deps.Locker, key, func() error {
			return s.deps.Tx.Transaction(ctx, func(txCtx context.Context) error {
				current, err := s.latestOnly(txCtx, id, action)
				if err != nil {
					return err
				}

				now := s.deps.Clock.Now()
				decision, err = workflow.DecideReview(workflow.ReviewInput{
					Current:  current.Status,
					Approve:  payload.Approve(),
					Feedback: feedback,
					Score:    payload.Score,
					Now:      now,
					DueAt:    dueAt,
				})
				if err != nil {
					return err
				}

				change := repository.SubmissionChange{SupervisorReviewedAt: &now}
				if feedback != "" {
					change.Feedback = &feedback
				}
				if decision.To.IsLocked() {
					change.LockedAt = &now
				}
				if err := applyDecision(txCtx, s.deps.Submissions, &current, decision, change, actorRef(actor), feedback, now); err != nil {
					return err
				}

				if payload.Score != nil {
					if err := s.deps.Marks.UpsertSupervisorMark(txCtx, &models.SupervisorMark{
						SubmissionID: current.ID,
						SupervisorID: actor.ID,
						Score:        *payload.Score,
						Comments:     comments,
						UpdatedAt:    now,
					}); err != nil {
						return err
					}
				}

				result = current
				return nil
			})
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "review_failed")
		return dto.SubmissionResponse{}, err
	}

	countTransitions(decision)
	extra := map[string]interface{}{}
	if feedback != "" {
		extra["feedback"] = feedback
	}
	s.deps.Publisher.Publish(ctx, outbound(result, decision.Intents, extra)...)

	s.logger.Info().
		Uint("submission_id", result.ID).
		Str("from", string(decision.From)).
		Str("to", string(decision.To)).
		Msg("submission reviewed")

	return dto.NewSubmissionResponse(result), nil
}

func (s *submissionService) LockForEvaluation(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.lock", trace.WithAttributes(attribute.Int64("submission.id", int64(id))))
	defer span.End()

	submission, project, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}
	if actor.ID != project.SupervisorID && !actor.IsStaff() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, ErrForbidden
	}

	var (
		result   models.Submission
		decision workflow.Decision
	)
	err = retryOnConflict(ctx, s.deps.Options.MaxAttempts, "submission.lock", s.logger, func(ctx context.Context) error {
		key := lock.SubmissionVersionKey(submission.ProjectID, submission.DocumentTypeID)
		return withLock(ctx, s.deps.Locker, key, func() error {
			return s.deps.Tx.Transaction(ctx, func(txCtx context.Context) error {
				current, err := s.latestOnly(txCtx, id, workflow.ActionLock)
				if err != nil {
					return err
				}

				decision, err = workflow.Decide(current.Status, workflow.ActionLock)
				if err != nil {
					return err
				}

				now := s.deps.Clock.Now()
				change := repository.SubmissionChange{IsFinal: true, LockedAt: &now}
				if err := applyDecision(txCtx, s.deps.Submissions, &current, decision, change, actorRef(actor), "locked for evaluation", now); err != nil {
					return err
				}
				result = current
				return nil
			})
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock_failed")
		return dto.SubmissionResponse{}, err
	}

	countTransitions(decision)
	s.deps.Publisher.Publish(ctx, outbound(result, decision.Intents, nil)...)
	s.logger.Info().Uint("submission_id", result.ID).Str("from", string(decision.From)).Msg("submission locked for evaluation")

	return dto.NewSubmissionResponse(result), nil
}

// latestOnly loads submission id for update and rejects it unless it is the newest version.
func (s *submissionService) latestOnly(ctx context.Context, id uint, action workflow.Action) (models.Submission, error) {
	current, err := s.deps.Submissions.FindForUpdate(ctx, id)
	if err != nil {
		return models.Submission{}, notFound(err, ErrSubmissionNotFound)
	}
	latest, err := s.deps.Submissions.Latest(ctx, current.ProjectID, current.DocumentTypeID)
	if err != nil {
		return models.Submission{}, err
	}
	if latest.ID != current.ID {
		return models.Submission{}, workflow.Violation(current.Status, action, workflow.ErrSubmissionSuperseded)
	}
	return current, nil
}

func (s *submissionService) load(ctx context.Context, id uint) (models.Submission, models.Project, error) {
	submission, err := s.deps.Submissions.FindByID(ctx, id)
	if err != nil {
		return models.Submission{}, models.Project{}, notFound(err, ErrSubmissionNotFound)
	}
	project, err := s.deps.Projects.FindByID(ctx, submission.ProjectID)
	if err != nil {
		return models.Submission{}, models.Project{}, notFound(err, ErrProjectNotFound)
	}
	return submission, project, nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionViewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.get", trace.WithAttributes(attribute.Int64("submission.id", int64(id))))
	defer span.End()

	submission, err := s.deps.Submissions.FindByID(ctx, id)
	if err != nil {
		return dto.SubmissionViewResponse{}, notFound(err, ErrSubmissionNotFound)
	}

	view := dto.SubmissionViewResponse{Submission: dto.NewSubmissionResponse(submission)}

	if s.storage != nil && submission.FileID != "" {
		url, metadata, err := s.storage.ResolveFile(ctx, submission.FileID)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to resolve submission file")
		} else {
			view.File = &dto.FileResponse{ID: submission.FileID, URL: url, Metadata: metadata}
		}
	}

	mark, err := s.deps.Marks.FindSupervisorMark(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionViewResponse{}, err
	}
	view.SupervisorMark = dto.NewSupervisorMarkResponse(mark)

	summary, err := evaluationSummary(ctx, s.deps, submission)
	if err != nil {
		return dto.SubmissionViewResponse{}, err
	}
	view.Evaluation = summary

	history, err := s.deps.Submissions.ListHistory(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionViewResponse{}, err
	}
	view.History = dto.NewStatusHistoryResponses(history)

	return view, nil
}

func (s *submissionService) History(ctx context.Context, id uint) ([]dto.StatusHistoryResponse, error) {
	if _, err := s.deps.Submissions.FindByID(ctx, id); err != nil {
		return nil, notFound(err, ErrSubmissionNotFound)
	}
	history, err := s.deps.Submissions.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewStatusHistoryResponses(history), nil
}

// Versions lists every version of a (project, document type) pair, oldest first.
func (s *submissionService) Versions(ctx context.Context, projectID, documentTypeID uint) ([]dto.SubmissionResponse, error) {
	if projectID == 0 || documentTypeID == 0 {
		return nil, workflow.Invalid("project_id", "project_id and document_type_id are required")
	}
	if _, err := s.deps.Projects.FindByID(ctx, projectID); err != nil {
		return nil, notFound(err, ErrProjectNotFound)
	}
	versions, err := s.deps.Submissions.ListVersions(ctx, projectID, documentTypeID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SubmissionResponse, 0, len(versions))
	for _, submission := range versions {
		out = append(out, dto.NewSubmissionResponse(submission))
	}
	return out, nil
}

// evaluationSummary aggregates the committee marks of submission under the configured policy.
func evaluationSummary(ctx context.Context, deps WorkflowDeps, submission models.Submission) (dto.EvaluationSummaryResponse, error) {
	marks, err := deps.Marks.ListEvaluationMarks(ctx, submission.ID)
	if err != nil {
		return dto.EvaluationSummaryResponse{}, err
	}
	roster, err := deps.Projects.CommitteeIDs(ctx, submission.ProjectID)
	if err != nil {
		return dto.EvaluationSummaryResponse{}, err
	}
	complete := workflow.EvaluationComplete(deps.Options.CompletionPolicy, models.MarkStates(marks), roster)
	return dto.NewEvaluationSummaryResponse(submission, marks, complete), nil
}

func deadlineDue(deadline *models.Deadline) *time.Time {
	if deadline == nil {
		return nil
	}
	due := deadline.DueAt
	return &due
}
