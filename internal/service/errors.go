package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// Lookup failures. Each wraps workflow.ErrNotFound.
var (
	ErrSubmissionNotFound   = fmt.Errorf("submission %w", workflow.ErrNotFound)
	ErrProjectNotFound      = fmt.Errorf("project %w", workflow.ErrNotFound)
	ErrDocumentTypeNotFound = fmt.Errorf("document type %w", workflow.ErrNotFound)
	ErrDeadlineNotFound     = fmt.Errorf("deadline %w", workflow.ErrNotFound)
	ErrBatchNotFound        = fmt.Errorf("deadline batch %w", workflow.ErrNotFound)
	ErrResultNotFound       = fmt.Errorf("final result %w", workflow.ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", workflow.ErrNotFound)
)

// ErrForbidden indicates the actor may not act on the resource.
var ErrForbidden = errors.New("actor is not permitted to perform this action")

// ErrDocumentTypeInactive rejects submissions against retired document types.
var ErrDocumentTypeInactive = fmt.Errorf("document type is inactive: %w", workflow.ErrBusinessRule)

// ErrProjectNotPending rejects approving or rejecting a project twice.
var ErrProjectNotPending = fmt.Errorf("project is not pending: %w", workflow.ErrBusinessRule)

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", workflow.ErrValidation, err)
}
