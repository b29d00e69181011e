package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
	"document-intelligence/internal/infra/logging"
	"document-intelligence/internal/infra/metrics"
)

// Dispatcher runs one leased job to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.ProcessingJob) error
}

// JobProcessor is the lease loop: claim one job, run it, record the outcome.
// Exclusion between workers comes only from the atomic lease claim.
type JobProcessor struct {
	jobs     repository.JobRepository
	dispatch Dispatcher
	events   adapter.EventPublisher
	owner    string
	lease    time.Duration
	poll     time.Duration
	now      func() time.Time
	log      *zerolog.Logger
}

func NewJobProcessor(
	jobs repository.JobRepository,
	dispatch Dispatcher,
	events adapter.EventPublisher,
	lease, poll time.Duration,
	logger *zerolog.Logger,
) *JobProcessor {
	owner := NewOwnerID()
	if lease <= 0 {
		lease = 300 * time.Second
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	l := logger.With().Str("component", "job-processor").Str("lease_owner", owner).Logger()
	return &JobProcessor{
		jobs:     jobs,
		dispatch: dispatch,
		events:   events,
		owner:    owner,
		lease:    lease,
		poll:     poll,
		now:      time.Now,
		log:      &l,
	}
}

// NewOwnerID returns "<hostname>-<ulid>".
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + ulid.Make().String()
}

func (p *JobProcessor) Owner() string { return p.owner }

// Start ticks every poll interval and hands processOne to the pool until ctx
// is cancelled. A saturated pool drops the tick.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll", p.poll).Dur("lease", p.lease).Msg("job processor started")
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				_, err := p.RunOnce(ctx)
				return err
			})
		}
	}
}

// RunOnce leases and processes at most one job. It reports whether a job was
// claimed; the error is non-nil only for queue failures, not job failures.
func (p *JobProcessor) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.jobs.LeaseNext(ctx, p.owner, p.lease)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		p.log.Error().Err(err).Msg("lease failed")
		return false, fmt.Errorf("lease next job: %w", err)
	}
	p.processOne(ctx, job)
	return true, nil
}

func (p *JobProcessor) processOne(ctx context.Context, job *model.ProcessingJob) {
	ctx = logging.WithOwner(logging.WithJobID(ctx, job.ID), p.owner)
	log := logging.With(ctx, p.log)
	log.Info().Str("job_type", string(job.Type)).Int("attempts", job.Attempts).Msg("job leased")
	p.publish(ctx, job, adapter.JobEventLeased, job.Attempts, "")

	if err := p.jobs.MarkRunning(ctx, job.ID, p.owner); err != nil {
		p.lostLease(log, err, "mark running")
		return
	}

	start := p.now()
	runErr := p.dispatch.Dispatch(ctx, job)
	elapsed := p.now().Sub(start)
	metrics.ObserveJobDuration(string(job.Type), elapsed)

	// The outcome is recorded even when the job context was cancelled mid-run.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if runErr == nil {
		if err := p.jobs.Complete(writeCtx, job.ID, p.owner); err != nil {
			p.lostLease(log, err, "complete")
			return
		}
		metrics.IncJob(string(job.Type), string(model.JobStatusSucceeded))
		p.publish(writeCtx, job, adapter.JobEventSucceeded, job.Attempts, "")
		log.Info().Dur("duration", elapsed).Msg("job succeeded")
		return
	}

	f := job.NextFailure(p.now(), runErr)
	if err := p.jobs.Fail(writeCtx, job.ID, p.owner, f); err != nil {
		p.lostLease(log, err, "fail")
		return
	}
	if f.Dead {
		metrics.IncJob(string(job.Type), string(model.JobStatusDead))
		p.publish(writeCtx, job, adapter.JobEventDead, f.Attempts, f.Error)
		log.Error().Err(runErr).Int("attempts", f.Attempts).Msg("job dead")
		return
	}
	metrics.IncJob(string(job.Type), "retry")
	p.publish(writeCtx, job, adapter.JobEventRetry, f.Attempts, f.Error)
	log.Warn().Err(runErr).Int("attempts", f.Attempts).Time("next_run_at", f.NextRunAt).Msg("job failed, retrying")
}

func (p *JobProcessor) lostLease(log *zerolog.Logger, err error, step string) {
	if errors.Is(err, domain.ErrJobNotOwned) {
		metrics.IncLeaseConflict()
		log.Warn().Str("step", step).Msg("lease lost to another worker")
		return
	}
	log.Error().Err(err).Str("step", step).Msg("job transition failed")
}

func (p *JobProcessor) publish(ctx context.Context, job *model.ProcessingJob, kind adapter.JobEventKind, attempts int, cause string) {
	if p.events == nil {
		return
	}
	ev := adapter.JobEvent{
		ID:         ulid.Make().String(),
		Kind:       kind,
		JobID:      job.ID,
		JobType:    string(job.Type),
		DocumentID: job.DocumentID,
		Attempts:   attempts,
		Error:      cause,
		At:         p.now().UTC(),
	}
	if err := p.events.Publish(ctx, ev); err != nil {
		p.log.Warn().Err(err).Str("kind", string(kind)).Str("job_id", job.ID).Msg("event not published")
	}
}
