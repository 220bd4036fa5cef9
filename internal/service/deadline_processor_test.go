package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

func TestDeadlineSweepLocksPendingSubmission(t *testing.T) {
	f := newWorkflowFixture(t)
	created := f.submit(t)
	deadline := f.addDeadline(t, f.clock.Now().Add(time.Hour))
	processor := NewDeadlineProcessor(f.deps, zerolog.Nop())
	ctx := context.Background()

	report, err := processor.RunDeadlineSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Deadlines)

	f.clock.Advance(2 * time.Hour)
	report, err = processor.RunDeadlineSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Deadlines: 1, Processed: 1, Locked: 1}, report)

	submission, err := f.deps.Submissions.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusLockedForEval, submission.Status)
	require.True(t, submission.IsFinal)
	require.NotEmpty(t, submission.AutoLockReason)
	require.NotNil(t, submission.LockedAt)

	locked := f.publisher.ByEvent(workflow.EventSubmissionLocked)
	require.Len(t, locked, 1)
	require.Contains(t, locked[0].Intent.Audience, workflow.RoleCommittee)
	require.Equal(t, true, locked[0].Intent.Payload["auto_locked"])
	require.Equal(t, deadline.ID, locked[0].Intent.Payload["deadline_id"])

	stored, err := f.deps.Deadlines.FindByID(ctx, deadline.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)

	report, err = processor.RunDeadlineSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Deadlines)
	require.Len(t, f.publisher.ByEvent(workflow.EventSubmissionLocked), 1)
}

func TestDeadlineSweepLocksRevisionRequestedAndApproved(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	svc := f.submissions()

	report := models.DocumentType{Name: "Final report", WeightSupervisor: 40, WeightCommittee: 60, Active: true}
	require.NoError(t, f.deps.DocumentTypes.Create(ctx, &report))
	projectID := f.project.ID
	f.addDeadline(t, f.clock.Now().Add(time.Hour))
	require.NoError(t, f.deps.Deadlines.Create(ctx, &models.Deadline{ProjectID: &projectID, DocumentTypeID: report.ID, DueAt: f.clock.Now().Add(time.Hour)}))

	proposal := f.submit(t)
	_, err := svc.Review(ctx, supervisor, proposal.ID, dto.SubmissionReviewRequest{Decision: dto.ReviewDecisionRevise, Feedback: "tighten the scope"})
	require.NoError(t, err)

	request := createRequest(f)
	request.DocumentTypeID = report.ID
	final, err := svc.Create(ctx, leader, request, pdfFile(t))
	require.NoError(t, err)
	_, err = svc.Review(ctx, supervisor, final.ID, dto.SubmissionReviewRequest{Decision: dto.ReviewDecisionApprove})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	sweep, err := NewDeadlineProcessor(f.deps, zerolog.Nop()).RunDeadlineSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Deadlines: 2, Processed: 2, Locked: 2}, sweep)

	revised, err := f.deps.Submissions.FindByID(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusLockedForEval, revised.Status)
	require.True(t, revised.IsFinal)
	require.Equal(t, workflow.AutoLockReason(workflow.StatusRevisionRequested), revised.AutoLockReason)
	require.NotEmpty(t, revised.AutoLockReason)

	approved, err := f.deps.Submissions.FindByID(ctx, final.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusLockedForEval, approved.Status)
	require.True(t, approved.IsFinal)
	require.Empty(t, approved.AutoLockReason)

	require.Len(t, f.publisher.ByEvent(workflow.EventSubmissionLocked), 2)
}

// flakySubmissions fails Latest for one project.
type flakySubmissions struct {
	repository.SubmissionRepository
	failProject uint
}

func (r *flakySubmissions) Latest(ctx context.Context, projectID, documentTypeID uint) (models.Submission, error) {
	if projectID == r.failProject {
		return models.Submission{}, errors.New("connection reset")
	}
	return r.SubmissionRepository.Latest(ctx, projectID, documentTypeID)
}

func TestDeadlineSweepContinuesPastFailingProject(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	type entry struct {
		project    models.Project
		deadline   models.Deadline
		submission dto.SubmissionResponse
	}
	entries := []entry{{project: f.project}}
	for _, title := range []string{"Library kiosk", "Lab scheduler"} {
		approvedAt := *f.project.ApprovedAt
		project := models.Project{Title: title, GroupLeaderID: leaderID, SupervisorID: supervisorID, Status: models.ProjectStatusApproved, ApprovedAt: &approvedAt}
		require.NoError(t, f.deps.Projects.Create(ctx, &project))
		entries = append(entries, entry{project: project})
	}
	for i := range entries {
		projectID := entries[i].project.ID
		entries[i].deadline = models.Deadline{ProjectID: &projectID, DocumentTypeID: f.documentType.ID, DueAt: f.clock.Now().Add(time.Minute)}
		require.NoError(t, f.deps.Deadlines.Create(ctx, &entries[i].deadline))

		request := createRequest(f)
		request.ProjectID = projectID
		created, err := f.submissions().Create(ctx, leader, request, pdfFile(t))
		require.NoError(t, err)
		entries[i].submission = created
	}

	broken := entries[2]
	flaky := &flakySubmissions{SubmissionRepository: f.deps.Submissions, failProject: broken.project.ID}
	f.deps.Submissions = flaky
	f.clock.Advance(time.Hour)
	processor := NewDeadlineProcessor(f.deps, zerolog.Nop())

	report, err := processor.RunDeadlineSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Deadlines: 3, Processed: 2, Locked: 2, Failures: 1}, report)

	for _, e := range entries[:2] {
		locked, err := f.deps.Submissions.FindByID(ctx, e.submission.ID)
		require.NoError(t, err)
		require.Equal(t, workflow.StatusLockedForEval, locked.Status)
	}

	pending, err := f.deps.Submissions.FindByID(ctx, broken.submission.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPendingSupervisor, pending.Status)
	require.False(t, pending.IsFinal)
	stored, err := f.deps.Deadlines.FindByID(ctx, broken.deadline.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ProcessedAt)

	flaky.failProject = 0
	report, err = processor.RunDeadlineSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Deadlines: 1, Processed: 1, Locked: 1}, report)

	recovered, err := f.deps.Submissions.FindByID(ctx, broken.submission.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusLockedForEval, recovered.Status)
}

func TestDeadlineSweepSkipsAlreadyLocked(t *testing.T) {
	f := newWorkflowFixture(t)
	id := f.lockSubmission(t)
	f.addDeadline(t, f.clock.Now().Add(time.Minute))
	f.clock.Advance(time.Hour)
	f.publisher.Reset()

	report, err := NewDeadlineProcessor(f.deps, zerolog.Nop()).RunDeadlineSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Locked)
	require.Empty(t, f.publisher.ByEvent(workflow.EventSubmissionLocked))

	history, err := f.deps.Submissions.ListHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestDeadlineSweepConcurrentRunsLockOnce(t *testing.T) {
	f := newWorkflowFixture(t)
	created := f.submit(t)
	f.addDeadline(t, f.clock.Now().Add(time.Minute))
	f.clock.Advance(time.Hour)
	processor := NewDeadlineProcessor(f.deps, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := processor.RunDeadlineSweep(context.Background())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, f.publisher.ByEvent(workflow.EventSubmissionLocked), 1)

	history, err := f.deps.Submissions.ListHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, workflow.ActionLock, history[1].Action)
	require.Nil(t, history[1].ActorID)
}

func TestDeadlineSweepBatchRecordsMissOnce(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	// A second project in the same window carries its own deadline and is excluded from the batch.
	approvedAt := *f.project.ApprovedAt
	own := models.Project{Title: "Own deadline", GroupLeaderID: 11, SupervisorID: supervisorID, Status: models.ProjectStatusApproved, ApprovedAt: &approvedAt}
	require.NoError(t, f.deps.Projects.Create(ctx, &own))
	ownID := own.ID
	require.NoError(t, f.deps.Deadlines.Create(ctx, &models.Deadline{ProjectID: &ownID, DocumentTypeID: f.documentType.ID, DueAt: f.clock.Now().Add(30 * 24 * time.Hour)}))

	batch := models.DeadlineBatch{Name: "2026 cohort", ApprovedFrom: approvedAt.Add(-time.Hour), ApprovedTo: approvedAt.Add(time.Hour)}
	require.NoError(t, f.deps.Deadlines.CreateBatch(ctx, &batch))
	batchID := batch.ID
	require.NoError(t, f.deps.Deadlines.Create(ctx, &models.Deadline{BatchID: &batchID, DocumentTypeID: f.documentType.ID, DueAt: f.clock.Now().Add(time.Minute)}))

	f.clock.Advance(time.Hour)
	processor := NewDeadlineProcessor(f.deps, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := processor.RunDeadlineSweep(ctx)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	missed := f.publisher.ByEvent(workflow.EventDeadlineMissed)
	require.Len(t, missed, 1)
	require.Equal(t, f.project.ID, missed[0].ProjectID)
	require.ElementsMatch(t, []workflow.Role{workflow.RoleGroupLeader, workflow.RoleSupervisor}, missed[0].Intent.Audience)
}

type countingProcessor struct {
	mu   sync.Mutex
	runs int
}

func (p *countingProcessor) RunDeadlineSweep(ctx context.Context) (SweepReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs++
	return SweepReport{Deadlines: 1}, nil
}

func TestSchedulerRunOnceHonoursLease(t *testing.T) {
	client := newRedis(t)
	lease := lock.NewRedisLocker(client, "test:lock", time.Minute)
	other := lock.NewRedisLocker(client, "test:lock", time.Minute)
	processor := &countingProcessor{}
	scheduler := NewDeadlineScheduler(processor, lease, "@every 1h", time.Second, zerolog.Nop())
	ctx := context.Background()

	release, ok, err := other.TryAcquire(ctx, lock.DeadlineSweepKey)
	require.NoError(t, err)
	require.True(t, ok)

	_, ran, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, ran)
	require.Zero(t, processor.runs)

	release()
	report, ran, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, report.Deadlines)
	require.Equal(t, 1, processor.runs)
}

func TestSchedulerStartValidatesSchedule(t *testing.T) {
	bad := NewDeadlineScheduler(&countingProcessor{}, nil, "not a schedule", time.Second, zerolog.Nop())
	require.Error(t, bad.Start())

	good := NewDeadlineScheduler(&countingProcessor{}, nil, "@every 1h", time.Second, zerolog.Nop())
	require.NoError(t, good.Start())
	require.NoError(t, good.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	good.Stop(ctx)
}
