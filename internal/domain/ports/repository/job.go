package repository

import (
	"context"
	"time"

	"document-intelligence/internal/domain/model"
)

type JobRepository interface {
	Enqueue(ctx context.Context, tx Tx, job *model.ProcessingJob) error

	// LeaseNext atomically claims the oldest eligible job for owner.
	// Returns domain.ErrNotFound when nothing is claimable.
	LeaseNext(ctx context.Context, owner string, lease time.Duration) (*model.ProcessingJob, error)

	// The following transitions only apply while owner still holds the lease;
	// otherwise they return domain.ErrJobNotOwned and change nothing.
	MarkRunning(ctx context.Context, id, owner string) error
	Complete(ctx context.Context, id, owner string) error
	Fail(ctx context.Context, id, owner string, f model.JobFailure) error

	FindByID(ctx context.Context, tx Tx, id string) (*model.ProcessingJob, error)
	Stats(ctx context.Context) (map[model.JobStatus]int, error)
}
