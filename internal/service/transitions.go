package service

import (
	"context"
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/observability"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// applyDecision persists decision on submission and appends a history entry.
// isFinal is sticky: once set it is never written back to false.
func applyDecision(ctx context.Context, repo repository.SubmissionRepository, submission *models.Submission, decision workflow.Decision, change repository.SubmissionChange, actorID *uint, reason string, at time.Time) error {
	change.Status = decision.To
	change.IsFinal = change.IsFinal || submission.IsFinal || decision.ForceFinal

	if err := repo.ApplyTransition(ctx, submission, change); err != nil {
		return err
	}

	return repo.AppendHistory(ctx, &models.SubmissionStatusHistory{
		SubmissionID: submission.ID,
		FromStatus:   decision.From,
		ToStatus:     decision.To,
		Action:       decision.Action,
		ActorID:      actorID,
		Reason:       reason,
		CreatedAt:    at,
	})
}

func countTransitions(decisions ...workflow.Decision) {
	for _, decision := range decisions {
		from := string(decision.From)
		if from == "" {
			from = "NONE"
		}
		observability.WorkflowTransitions().WithLabelValues(string(decision.Action), from, string(decision.To)).Inc()
	}
}

func actorRef(actor Actor) *uint {
	if actor.ID == 0 {
		return nil
	}
	id := actor.ID
	return &id
}
