// Package workflow holds the submission lifecycle rules of the final-year-project
// pipeline: the transition table, the supervisor review guards, evaluation
// completion and score aggregation. Nothing in here performs I/O.
package workflow

// Status is the lifecycle state of a single document submission.
type Status string

const (
	StatusNone                 Status = ""
	StatusPendingSupervisor    Status = "PENDING_SUPERVISOR"
	StatusRevisionRequested    Status = "REVISION_REQUESTED"
	StatusApprovedBySupervisor Status = "APPROVED_BY_SUPERVISOR"
	StatusLockedForEval        Status = "LOCKED_FOR_EVAL"
	StatusEvalInProgress       Status = "EVAL_IN_PROGRESS"
	StatusEvalFinalized        Status = "EVAL_FINALIZED"
)

// Statuses lists every persisted status in lifecycle order.
var Statuses = []Status{
	StatusPendingSupervisor,
	StatusRevisionRequested,
	StatusApprovedBySupervisor,
	StatusLockedForEval,
	StatusEvalInProgress,
	StatusEvalFinalized,
}

// Valid reports whether s is a known persisted status.
func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsLocked reports whether the submission is frozen for supervisor review.
func (s Status) IsLocked() bool {
	switch s {
	case StatusLockedForEval, StatusEvalInProgress, StatusEvalFinalized:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusEvalFinalized
}

// AcceptsMarks reports whether evaluators may record marks in s.
func (s Status) AcceptsMarks() bool {
	return s == StatusLockedForEval || s == StatusEvalInProgress
}

// Action is an operation applied to a submission.
type Action string

const (
	ActionCreate             Action = "create"
	ActionApprove            Action = "approve"
	ActionRequestRevision    Action = "request_revision"
	ActionApproveLate        Action = "approve_after_deadline"
	ActionLock               Action = "lock_for_evaluation"
	ActionStartEvaluation    Action = "start_evaluation"
	ActionFinalizeEvaluation Action = "finalize_evaluation"

	// ActionRecordMark never changes status; it names mark rejections.
	ActionRecordMark Action = "record_mark"
)

// Role is a notification audience relative to a project.
type Role string

const (
	RoleSupervisor  Role = "supervisor"
	RoleGroupLeader Role = "group_leader"
	RoleCommittee   Role = "committee"
)

// Notification event types.
const (
	EventSubmissionCreated   = "submission.created"
	EventSubmissionApproved  = "submission.approved"
	EventRevisionRequested   = "submission.revision_requested"
	EventSubmissionLocked    = "submission.locked"
	EventEvaluationStarted   = "evaluation.started"
	EventEvaluationFinalized = "evaluation.finalized"
	EventDeadlineMissed      = "deadline.missed"
	EventFinalResultReleased = "result.released"
)
