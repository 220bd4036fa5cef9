package service

import (
	"context"

	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// WorkflowOptions tunes the submission workflow.
type WorkflowOptions struct {
	MaxAttempts      int
	CompletionPolicy workflow.CompletionPolicy
	UploadMaxBytes   int64
}

// WorkflowDeps bundles the repositories and ports shared by the workflow services.
type WorkflowDeps struct {
	Tx            repository.Transactor
	Projects      repository.ProjectRepository
	DocumentTypes repository.DocumentTypeRepository
	Deadlines     repository.DeadlineRepository
	Submissions   repository.SubmissionRepository
	Marks         repository.MarkRepository
	Results       repository.FinalResultRepository
	Locker        lock.Locker
	Publisher     IntentPublisher
	Clock         Clock
	Options       WorkflowOptions
}

func (d WorkflowDeps) withDefaults() WorkflowDeps {
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex()
	}
	if d.Publisher == nil {
		d.Publisher = discardPublisher{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Options.MaxAttempts <= 0 {
		d.Options.MaxAttempts = DefaultMaxAttempts
	}
	if d.Options.CompletionPolicy == "" {
		d.Options.CompletionPolicy = workflow.CompletionSubmitted
	}
	if d.Options.UploadMaxBytes <= 0 {
		d.Options.UploadMaxBytes = 20 << 20
	}
	return d
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, ...Outbound) {}
