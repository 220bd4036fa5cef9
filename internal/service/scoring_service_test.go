package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// evaluateProject runs a submission through review, lock and two committee
// marks. B drafts first so that A's final mark alone does not complete the
// evaluation under the default submitted policy.
func evaluateProject(t *testing.T, f *workflowFixture, scoring ScoringService) {
	t.Helper()
	ctx := context.Background()
	submissions := f.submissions()

	created := f.submit(t)
	supervisorScore := 80.0
	_, err := submissions.Review(ctx, supervisor, created.ID, dto.SubmissionReviewRequest{Decision: dto.ReviewDecisionApprove, Score: &supervisorScore})
	require.NoError(t, err)
	_, err = submissions.LockForEvaluation(ctx, supervisor, created.ID)
	require.NoError(t, err)

	evaluation := NewEvaluationService(f.deps, scoring, newValidator(), zerolog.Nop())
	_, err = evaluation.RecordMark(ctx, committeeB, created.ID, mark(85, false))
	require.NoError(t, err)
	progress, err := evaluation.RecordMark(ctx, committeeA, created.ID, mark(70, true))
	require.NoError(t, err)
	require.Equal(t, workflow.StatusEvalInProgress, progress.Submission.Status)
	resp, err := evaluation.RecordMark(ctx, committeeB, created.ID, mark(90, true))
	require.NoError(t, err)
	require.Equal(t, workflow.StatusEvalFinalized, resp.Submission.Status)
}

func TestComputeFinalResultAppliesWeights(t *testing.T) {
	f := newWorkflowFixture(t)
	scoring := NewScoringService(f.deps, nil, time.Minute, nil, zerolog.Nop())

	evaluateProject(t, f, scoring)

	result, err := scoring.Get(context.Background(), f.project.ID)
	require.NoError(t, err)
	require.Equal(t, "computed", result.Status)
	require.False(t, result.Released)
	require.Equal(t, 80.0, result.TotalScore)
	require.Len(t, result.Breakdown, 1)
	require.True(t, result.Breakdown[0].Contributing)
	require.Equal(t, 80.0, result.Breakdown[0].CommitteeAvgScore)
}

func TestComputeFinalResultWithoutSubmissions(t *testing.T) {
	f := newWorkflowFixture(t)
	scoring := NewScoringService(f.deps, nil, time.Minute, nil, zerolog.Nop())

	result, err := scoring.ComputeFinalResult(context.Background(), f.project.ID)
	require.NoError(t, err)
	require.Zero(t, result.TotalScore)
	require.Len(t, result.Breakdown, 1)
	require.False(t, result.Breakdown[0].Contributing)

	_, err = scoring.ComputeFinalResult(context.Background(), 404)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestReleaseHasSingleWinnerAndFreezesResult(t *testing.T) {
	f := newWorkflowFixture(t)
	cache := newRedis(t)
	activity := NewActivityService(repository.NewActivityLogRepository(f.db), zerolog.Nop())
	scoring := NewScoringService(f.deps, cache, time.Minute, activity, zerolog.Nop())
	ctx := context.Background()

	_, err := scoring.Release(ctx, admin, f.project.ID)
	require.ErrorIs(t, err, workflow.ErrResultNotComputed)

	evaluateProject(t, f, scoring)

	_, err = scoring.Release(ctx, supervisor, f.project.ID)
	require.ErrorIs(t, err, ErrForbidden)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		released int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := scoring.Release(ctx, admin, f.project.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, workflow.ErrResultReleased):
				released++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
	require.Equal(t, callers-1, released)
	require.Len(t, f.publisher.ByEvent(workflow.EventFinalResultReleased), 1)

	_, err = scoring.ComputeFinalResult(ctx, f.project.ID)
	require.ErrorIs(t, err, workflow.ErrResultReleased)

	result, err := scoring.Get(ctx, f.project.ID)
	require.NoError(t, err)
	require.True(t, result.CacheHit)
	require.True(t, result.Released)
	require.Equal(t, 80.0, result.TotalScore)

	log, err := activity.List(ctx, dto.ActivityListRequest{Action: "result.released"})
	require.NoError(t, err)
	require.Len(t, log.Items, 1)
	require.Equal(t, adminID, log.Items[0].ActorID)
}

func TestGetResultNotFound(t *testing.T) {
	f := newWorkflowFixture(t)
	scoring := NewScoringService(f.deps, newRedis(t), time.Minute, nil, zerolog.Nop())

	_, err := scoring.Get(context.Background(), f.project.ID)
	require.ErrorIs(t, err, ErrResultNotFound)
}
