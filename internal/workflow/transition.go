package workflow

import (
	"strings"
	"time"
)

// Intent is a notification to be dispatched after a transition commits.
type Intent struct {
	Event    string
	Audience []Role
	Payload  map[string]interface{}
}

// Decision is the outcome of applying an action to a status.
type Decision struct {
	From       Status
	To         Status
	Action     Action
	ForceFinal bool
	Intents    []Intent
}

type transitionKey struct {
	from   Status
	action Action
}

type transition struct {
	to         Status
	forceFinal bool
	event      string
	audience   []Role
}

var transitions = map[transitionKey]transition{
	{StatusNone, ActionCreate}: {
		to: StatusPendingSupervisor, event: EventSubmissionCreated,
		audience: []Role{RoleSupervisor},
	},
	{StatusPendingSupervisor, ActionApprove}: {
		to: StatusApprovedBySupervisor, event: EventSubmissionApproved,
		audience: []Role{RoleGroupLeader},
	},
	{StatusApprovedBySupervisor, ActionApprove}: {
		to: StatusApprovedBySupervisor, event: EventSubmissionApproved,
		audience: []Role{RoleGroupLeader},
	},
	{StatusPendingSupervisor, ActionRequestRevision}: {
		to: StatusRevisionRequested, event: EventRevisionRequested,
		audience: []Role{RoleGroupLeader},
	},
	{StatusPendingSupervisor, ActionApproveLate}: {
		to: StatusLockedForEval, forceFinal: true, event: EventSubmissionLocked,
		audience: []Role{RoleGroupLeader, RoleCommittee},
	},
	{StatusApprovedBySupervisor, ActionApproveLate}: {
		to: StatusLockedForEval, forceFinal: true, event: EventSubmissionLocked,
		audience: []Role{RoleGroupLeader, RoleCommittee},
	},
	{StatusRevisionRequested, ActionApproveLate}: {
		to: StatusLockedForEval, forceFinal: true, event: EventSubmissionLocked,
		audience: []Role{RoleGroupLeader, RoleCommittee},
	},
	{StatusPendingSupervisor, ActionLock}: {
		to: StatusLockedForEval, forceFinal: true, event: EventSubmissionLocked,
		audience: []Role{RoleGroupLeader, RoleCommittee},
	},
	{StatusApprovedBySupervisor, ActionLock}: {
		to: StatusLockedForEval, forceFinal: true, event: EventSubmissionLocked,
		audience: []Role{RoleGroupLeader, RoleCommittee},
	},
	{StatusRevisionRequested, ActionLock}: {
		to: StatusLockedForEval, forceFinal: true, event: EventSubmissionLocked,
		audience: []Role{RoleGroupLeader, RoleCommittee},
	},
	{StatusLockedForEval, ActionStartEvaluation}: {
		to: StatusEvalInProgress, event: EventEvaluationStarted,
		audience: []Role{RoleGroupLeader, RoleSupervisor, RoleCommittee},
	},
	{StatusEvalInProgress, ActionFinalizeEvaluation}: {
		to: StatusEvalFinalized, event: EventEvaluationFinalized,
		audience: []Role{RoleGroupLeader, RoleSupervisor, RoleCommittee},
	},
}

// Decide applies action to from using the transition table.
func Decide(from Status, action Action) (Decision, error) {
	t, ok := transitions[transitionKey{from: from, action: action}]
	if !ok {
		return Decision{}, Violation(from, action, rejectionRule(from, action))
	}

	decision := Decision{
		From:       from,
		To:         t.to,
		Action:     action,
		ForceFinal: t.forceFinal,
	}
	if t.event != "" {
		audience := make([]Role, len(t.audience))
		copy(audience, t.audience)
		decision.Intents = []Intent{{
			Event:    t.event,
			Audience: audience,
			Payload: map[string]interface{}{
				"from":   string(from),
				"to":     string(t.to),
				"action": string(action),
			},
		}}
	}

	return decision, nil
}

func rejectionRule(from Status, action Action) error {
	switch {
	case action == ActionLock && from.IsLocked():
		return ErrAlreadyLocked
	case isReview(action) && from.IsLocked():
		return ErrSubmissionLocked
	case isReview(action) && from == StatusRevisionRequested:
		return ErrAwaitingRevision
	case action == ActionCreate:
		return ErrFinalSubmissionExists
	case (action == ActionStartEvaluation || action == ActionFinalizeEvaluation) && from.IsTerminal():
		return ErrEvaluationFinalized
	case action == ActionStartEvaluation || action == ActionFinalizeEvaluation:
		return ErrEvaluationClosed
	default:
		return ErrInvalidTransition
	}
}

func isReview(action Action) bool {
	return action == ActionApprove || action == ActionRequestRevision || action == ActionApproveLate
}

// ReviewInput carries everything the supervisor review guard needs.
type ReviewInput struct {
	Current  Status
	Approve  bool
	Feedback string
	Score    *float64
	Now      time.Time
	DueAt    *time.Time
}

// PastDue reports whether now is at or after the deadline.
func PastDue(now time.Time, dueAt *time.Time) bool {
	return dueAt != nil && !now.Before(*dueAt)
}

// DecideReview resolves a supervisor review into a transition. Before the
// deadline the supervisor may approve or request a revision with feedback;
// at or after it the supervisor must approve with marks, which locks the
// submission and makes it final.
func DecideReview(in ReviewInput) (Decision, error) {
	if in.Current.IsLocked() {
		action := ActionApprove
		if !in.Approve {
			action = ActionRequestRevision
		}
		return Decision{}, Violation(in.Current, action, ErrSubmissionLocked)
	}

	if PastDue(in.Now, in.DueAt) {
		if !in.Approve {
			return Decision{}, Violation(in.Current, ActionRequestRevision, ErrRevisionAfterDeadline)
		}
		if in.Score == nil {
			return Decision{}, Violation(in.Current, ActionApproveLate, ErrMarksRequiredAfterDeadline)
		}
		return Decide(in.Current, ActionApproveLate)
	}

	if in.Approve {
		return Decide(in.Current, ActionApprove)
	}

	if strings.TrimSpace(in.Feedback) == "" {
		return Decision{}, Invalid("feedback", "revision feedback is required")
	}
	return Decide(in.Current, ActionRequestRevision)
}

// AutoLockReason annotates submissions force-locked by the deadline sweep.
// Approved submissions carry no annotation.
func AutoLockReason(from Status) string {
	switch from {
	case StatusPendingSupervisor:
		return "auto-locked at deadline: supervisor review was still pending"
	case StatusRevisionRequested:
		return "auto-locked at deadline: requested revision was never resubmitted"
	default:
		return ""
	}
}
