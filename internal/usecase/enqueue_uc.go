package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

// Compile-time check
var _ EnqueueUseCase = (*enqueueUC)(nil)

// EnqueueUseCase submits work to the shared queue.
type EnqueueUseCase interface {
	EnqueueIngest(ctx context.Context, documentID string) (*model.ProcessingJob, error)
	EnqueueExplain(ctx context.Context, p model.ExplainPayload) (*model.ProcessingJob, error)
	Job(ctx context.Context, id string) (*model.ProcessingJob, error)
}

type enqueueUC struct {
	jobs        repository.JobRepository
	maxAttempts int
	log         *zerolog.Logger
}

func NewEnqueueUseCase(jobs repository.JobRepository, maxAttempts int, logger *zerolog.Logger) *enqueueUC {
	return &enqueueUC{jobs: jobs, maxAttempts: maxAttempts, log: logger}
}

func (uc *enqueueUC) EnqueueIngest(ctx context.Context, documentID string) (*model.ProcessingJob, error) {
	return uc.enqueue(ctx, model.IngestPayload{DocumentID: documentID})
}

func (uc *enqueueUC) EnqueueExplain(ctx context.Context, p model.ExplainPayload) (*model.ProcessingJob, error) {
	return uc.enqueue(ctx, p)
}

func (uc *enqueueUC) Job(ctx context.Context, id string) (*model.ProcessingJob, error) {
	return uc.jobs.FindByID(ctx, nil, id)
}

func (uc *enqueueUC) enqueue(ctx context.Context, p model.JobPayload) (*model.ProcessingJob, error) {
	job, err := model.NewJob(uuid.NewString(), p, uc.maxAttempts)
	if err != nil {
		return nil, err
	}
	if err := uc.jobs.Enqueue(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	uc.log.Info().Str("job_id", job.ID).Str("job_type", string(job.Type)).Str("document_id", job.DocumentID).Msg("job enqueued")
	return job, nil
}
