package workflow

import (
	"errors"
	"fmt"
)

// Error categories surfaced to callers. Every error returned by the workflow
// and the services built on it matches exactly one of these with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrBusinessRule        = errors.New("business rule violation")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
)

type ruleError struct {
	msg string
}

func (e *ruleError) Error() string { return e.msg }

func (e *ruleError) Is(target error) bool { return target == ErrBusinessRule }

func newRule(msg string) error {
	return &ruleError{msg: msg}
}

// Named business rules.
var (
	ErrFinalSubmissionExists      = newRule("final submission already exists")
	ErrRevisionAfterDeadline      = newRule("cannot request revision after deadline")
	ErrMarksRequiredAfterDeadline = newRule("marks required after deadline")
	ErrEvaluationFinalized        = newRule("evaluation already finalized")
	ErrMarkFinalized              = newRule("evaluation mark already finalized")
	ErrEvaluationClosed           = newRule("submission is not open for evaluation")
	ErrAlreadyLocked              = newRule("submission already locked for evaluation")
	ErrSubmissionLocked           = newRule("submission is locked and immutable to supervisor review")
	ErrAwaitingRevision           = newRule("revision requested; a new version must be submitted")
	ErrSubmissionSuperseded       = newRule("submission superseded by a newer version")
	ErrInvalidTransition          = newRule("transition not allowed")
	ErrDeadlinePassed             = newRule("deadline has passed")
	ErrProjectNotApproved         = newRule("project is not approved")
	ErrEvaluatorNotAssigned       = newRule("evaluator is not on the committee roster")
	ErrResultNotComputed          = newRule("final result not computed")
	ErrResultReleased             = newRule("final result already released")
)

// RuleViolation names the offending state and action of a rejected transition.
type RuleViolation struct {
	State  Status
	Action Action
	Rule   error
}

func (v *RuleViolation) Error() string {
	state := string(v.State)
	if state == "" {
		state = "NONE"
	}
	reason := "transition not allowed"
	if v.Rule != nil {
		reason = v.Rule.Error()
	}
	return fmt.Sprintf("cannot %s submission in state %s: %s", v.Action, state, reason)
}

func (v *RuleViolation) Unwrap() error {
	if v.Rule == nil {
		return ErrBusinessRule
	}
	return v.Rule
}

// Violation builds a RuleViolation for the given state and action.
func Violation(state Status, action Action, rule error) error {
	return &RuleViolation{State: state, Action: action, Rule: rule}
}

// ValidationError reports a malformed or missing field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
