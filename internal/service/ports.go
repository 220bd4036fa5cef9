package service

import (
	"context"
	"io"
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// Clock supplies the current time to deadline comparisons.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// NotificationPort delivers a message to a single user. Delivery is best effort.
type NotificationPort interface {
	Notify(ctx context.Context, userID uint, eventType string, payload map[string]interface{}) error
}

// EmailPort sends a templated email. Delivery is best effort.
type EmailPort interface {
	SendTemplatedEmail(ctx context.Context, recipients []string, template string, data map[string]interface{}) error
}

// FileStoragePort resolves a stored document to a URL and its metadata.
type FileStoragePort interface {
	ResolveFile(ctx context.Context, fileID string) (string, map[string]interface{}, error)
}

// FileUploader stores an uploaded document and returns its file id. Remove
// deletes a document that never became part of a committed submission.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
	Remove(ctx context.Context, fileID string) error
}

// Outbound is a notification intent bound to the project it concerns.
type Outbound struct {
	ProjectID      uint
	SubmissionID   uint
	DocumentTypeID uint
	Intent         workflow.Intent
}

// IntentPublisher hands committed notification intents to the dispatcher.
// Publish never blocks on delivery.
type IntentPublisher interface {
	Publish(ctx context.Context, items ...Outbound)
}

// Actor identifies the authenticated caller.
type Actor struct {
	ID   uint
	Role string
}

// IsStaff reports whether the actor administers the workflow.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleCoordinator
}

func outbound(submission models.Submission, intents []workflow.Intent, extra map[string]interface{}) []Outbound {
	items := make([]Outbound, 0, len(intents))
	for _, intent := range intents {
		payload := make(map[string]interface{}, len(intent.Payload)+len(extra)+3)
		for key, value := range intent.Payload {
			payload[key] = value
		}
		for key, value := range extra {
			payload[key] = value
		}
		payload["submission_id"] = submission.ID
		payload["version"] = submission.Version
		payload["document_type_id"] = submission.DocumentTypeID
		intent.Payload = payload

		items = append(items, Outbound{
			ProjectID:      submission.ProjectID,
			SubmissionID:   submission.ID,
			DocumentTypeID: submission.DocumentTypeID,
			Intent:         intent,
		})
	}
	return items
}
