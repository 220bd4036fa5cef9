package service

import (
	"context"

	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/repository"
)

// VersionAllocator hands out gap-free submission versions per (project, document type).
type VersionAllocator interface {
	// Allocate reserves the next version and calls insert with it inside a
	// transaction. The version is released if insert or the commit fails.
	Allocate(ctx context.Context, projectID, documentTypeID uint, insert func(ctx context.Context, version int) error) (int, error)
}

type versionAllocator struct {
	tx          repository.Transactor
	submissions repository.SubmissionRepository
	locker      lock.Locker
}

// NewVersionAllocator constructs an allocator serialised by locker.
func NewVersionAllocator(tx repository.Transactor, submissions repository.SubmissionRepository, locker lock.Locker) VersionAllocator {
	return &versionAllocator{tx: tx, submissions: submissions, locker: locker}
}

func (a *versionAllocator) Allocate(ctx context.Context, projectID, documentTypeID uint, insert func(ctx context.Context, version int) error) (int, error) {
	var version int
	err := withLock(ctx, a.locker, lock.SubmissionVersionKey(projectID, documentTypeID), func() error {
		return a.tx.Transaction(ctx, func(txCtx context.Context) error {
			if err := a.submissions.LockVersionKey(txCtx, projectID, documentTypeID); err != nil {
				return err
			}
			current, err := a.submissions.MaxVersion(txCtx, projectID, documentTypeID)
			if err != nil {
				return err
			}
			version = current + 1
			return insert(txCtx, version)
		})
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
