package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var allActions = []Action{
	ActionCreate,
	ActionApprove,
	ActionRequestRevision,
	ActionApproveLate,
	ActionLock,
	ActionStartEvaluation,
	ActionFinalizeEvaluation,
}

func TestDecideCoversEveryStateAndAction(t *testing.T) {
	states := append([]Status{StatusNone}, Statuses...)

	for _, from := range states {
		for _, action := range allActions {
			decision, err := Decide(from, action)
			_, allowed := transitions[transitionKey{from: from, action: action}]

			if !allowed {
				require.Error(t, err, "%s/%s", from, action)
				require.ErrorIs(t, err, ErrBusinessRule)
				var violation *RuleViolation
				require.True(t, errors.As(err, &violation))
				require.Equal(t, from, violation.State)
				require.Equal(t, action, violation.Action)
				continue
			}

			require.NoError(t, err, "%s/%s", from, action)
			require.Equal(t, from, decision.From)
			require.True(t, decision.To.Valid())
			require.Len(t, decision.Intents, 1)
		}
	}
}

func TestLockedStatesNeverRegress(t *testing.T) {
	for key, tr := range transitions {
		if key.from.IsLocked() {
			require.True(t, tr.to.IsLocked(), "%s/%s regresses to %s", key.from, key.action, tr.to)
		}
		if tr.forceFinal {
			require.True(t, tr.to.IsLocked())
		}
	}

	for _, action := range allActions {
		_, err := Decide(StatusEvalFinalized, action)
		require.Error(t, err, "terminal state accepted %s", action)
	}
}

func TestLockIsIdempotentForLockedStates(t *testing.T) {
	for _, status := range []Status{StatusLockedForEval, StatusEvalInProgress, StatusEvalFinalized} {
		_, err := Decide(status, ActionLock)
		require.ErrorIs(t, err, ErrAlreadyLocked)
	}

	for _, status := range []Status{StatusPendingSupervisor, StatusApprovedBySupervisor, StatusRevisionRequested} {
		decision, err := Decide(status, ActionLock)
		require.NoError(t, err)
		require.Equal(t, StatusLockedForEval, decision.To)
		require.True(t, decision.ForceFinal)
		require.Contains(t, decision.Intents[0].Audience, RoleCommittee)
	}
}

func TestEvaluationIntentsReachEveryProjectRole(t *testing.T) {
	steps := []struct {
		from   Status
		action Action
		event  string
	}{
		{StatusLockedForEval, ActionStartEvaluation, EventEvaluationStarted},
		{StatusEvalInProgress, ActionFinalizeEvaluation, EventEvaluationFinalized},
	}
	for _, step := range steps {
		decision, err := Decide(step.from, step.action)
		require.NoError(t, err)
		require.Len(t, decision.Intents, 1)
		require.Equal(t, step.event, decision.Intents[0].Event)
		require.ElementsMatch(t, []Role{RoleGroupLeader, RoleSupervisor, RoleCommittee}, decision.Intents[0].Audience)
	}
}

func TestEvaluationActionsAfterFinalizeAreRejected(t *testing.T) {
	require.True(t, StatusEvalFinalized.IsTerminal())
	for _, status := range Statuses[:len(Statuses)-1] {
		require.False(t, status.IsTerminal(), status)
	}

	for _, action := range []Action{ActionStartEvaluation, ActionFinalizeEvaluation} {
		_, err := Decide(StatusEvalFinalized, action)
		require.ErrorIs(t, err, ErrEvaluationFinalized, action)
	}
	_, err := Decide(StatusPendingSupervisor, ActionStartEvaluation)
	require.ErrorIs(t, err, ErrEvaluationClosed)
}

func TestDecideReviewBeforeDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := now.Add(24 * time.Hour)

	decision, err := DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: true, Now: now, DueAt: &due})
	require.NoError(t, err)
	require.Equal(t, StatusApprovedBySupervisor, decision.To)
	require.False(t, decision.ForceFinal)

	_, err = DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: false, Feedback: "  ", Now: now, DueAt: &due})
	require.ErrorIs(t, err, ErrValidation)

	decision, err = DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: false, Feedback: "expand chapter 2", Now: now, DueAt: &due})
	require.NoError(t, err)
	require.Equal(t, StatusRevisionRequested, decision.To)
	require.Equal(t, EventRevisionRequested, decision.Intents[0].Event)

	_, err = DecideReview(ReviewInput{Current: StatusRevisionRequested, Approve: true, Now: now, DueAt: &due})
	require.ErrorIs(t, err, ErrAwaitingRevision)
}

func TestDecideReviewAtOrAfterDeadline(t *testing.T) {
	due := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	score := 72.5

	for _, now := range []time.Time{due, due.Add(time.Minute)} {
		_, err := DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: false, Feedback: "redo", Now: now, DueAt: &due})
		require.ErrorIs(t, err, ErrRevisionAfterDeadline)
		require.ErrorIs(t, err, ErrBusinessRule)

		_, err = DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: true, Now: now, DueAt: &due})
		require.ErrorIs(t, err, ErrMarksRequiredAfterDeadline)

		decision, err := DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: true, Score: &score, Now: now, DueAt: &due})
		require.NoError(t, err)
		require.Equal(t, StatusLockedForEval, decision.To)
		require.True(t, decision.ForceFinal)

		decision, err = DecideReview(ReviewInput{Current: StatusRevisionRequested, Approve: true, Score: &score, Now: now, DueAt: &due})
		require.NoError(t, err)
		require.Equal(t, StatusLockedForEval, decision.To)
	}
}

func TestDecideReviewRejectsLockedSubmission(t *testing.T) {
	score := 90.0
	_, err := DecideReview(ReviewInput{Current: StatusLockedForEval, Approve: true, Score: &score, Now: time.Now()})
	require.ErrorIs(t, err, ErrSubmissionLocked)
	require.Contains(t, err.Error(), "LOCKED_FOR_EVAL")
}

func TestDecideReviewWithoutDeadline(t *testing.T) {
	decision, err := DecideReview(ReviewInput{Current: StatusPendingSupervisor, Approve: true, Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, StatusApprovedBySupervisor, decision.To)
}

func TestAutoLockReason(t *testing.T) {
	require.NotEmpty(t, AutoLockReason(StatusPendingSupervisor))
	require.NotEmpty(t, AutoLockReason(StatusRevisionRequested))
	require.Empty(t, AutoLockReason(StatusApprovedBySupervisor))
}
