package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, document_id, job_type, payload, attempts, max_attempts, status,
  lease_owner, lease_expires_at, next_run_at, last_error, created_at, updated_at`

func (r *jobRepo) Enqueue(ctx context.Context, tx repository.Tx, j *model.ProcessingJob) error {
	const q = `
INSERT INTO processing_jobs (
  id, document_id, job_type, payload, attempts, max_attempts, status, next_run_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9);`
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.NextRunAt.IsZero() {
		j.NextRunAt = now
	}
	if j.Status == "" {
		j.Status = model.JobStatusQueued
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		j.ID, j.DocumentID, string(j.Type), []byte(j.Payload), j.Attempts, j.MaxAttempts,
		string(j.Status), j.NextRunAt, j.CreatedAt)
	return mapErr(err)
}

// LeaseNext calls the lease_next_job RPC. A row whose id is NULL is the
// function's "nothing to lease" marker.
func (r *jobRepo) LeaseNext(ctx context.Context, owner string, lease time.Duration) (*model.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM lease_next_job($1, $2);`
	row, err := queryRow(ctx, r.pool, nil, q, owner, int(lease/time.Second))
	if err != nil {
		return nil, err
	}
	j, err := scanJob(row)
	if err != nil {
		return nil, mapErr(err)
	}
	if j == nil {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (r *jobRepo) MarkRunning(ctx context.Context, id, owner string) error {
	const q = `
UPDATE processing_jobs
   SET status='running', updated_at=now()
 WHERE id=$1 AND lease_owner=$2 AND status IN ('leased','running');`
	return r.guarded(ctx, q, id, owner)
}

func (r *jobRepo) Complete(ctx context.Context, id, owner string) error {
	const q = `
UPDATE processing_jobs
   SET status='succeeded', lease_owner=NULL, lease_expires_at=NULL, last_error='', updated_at=now()
 WHERE id=$1 AND lease_owner=$2 AND status IN ('leased','running');`
	return r.guarded(ctx, q, id, owner)
}

func (r *jobRepo) Fail(ctx context.Context, id, owner string, f model.JobFailure) error {
	status := model.JobStatusQueued
	next := f.NextRunAt
	if f.Dead {
		status = model.JobStatusDead
		next = time.Now().UTC()
	}
	const q = `
UPDATE processing_jobs
   SET status=$3, attempts=$4, next_run_at=$5, last_error=$6,
       lease_owner=NULL, lease_expires_at=NULL, updated_at=now()
 WHERE id=$1 AND lease_owner=$2 AND status IN ('leased','running');`
	return r.guarded(ctx, q, id, owner, string(status), f.Attempts, next, f.Error)
}

func (r *jobRepo) guarded(ctx context.Context, q string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, nil, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotOwned
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id=$1;`
	row, err := queryRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	j, err := scanJob(row)
	if err != nil {
		return nil, mapErr(err)
	}
	if j == nil {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (r *jobRepo) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	const q = `SELECT status, count(*) FROM processing_jobs GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := map[model.JobStatus]int{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.JobStatus(status)] = int(n)
	}
	return out, rows.Err()
}

// scanJob returns (nil, nil) for the all-NULL marker row.
func scanJob(row pgx.Row) (*model.ProcessingJob, error) {
	var (
		id, docID, jobType, status, lastErr *string
		payload                             []byte
		attempts, maxAttempts               *int32
		owner                               *string
		leaseExp, nextRun, created, updated *time.Time
	)
	if err := row.Scan(&id, &docID, &jobType, &payload, &attempts, &maxAttempts, &status,
		&owner, &leaseExp, &nextRun, &lastErr, &created, &updated); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, nil
	}
	j := &model.ProcessingJob{
		ID:             *id,
		DocumentID:     deref(docID),
		Type:           model.JobType(deref(jobType)),
		Payload:        payload,
		Status:         model.JobStatus(deref(status)),
		LeaseOwner:     deref(owner),
		LeaseExpiresAt: leaseExp,
		LastError:      deref(lastErr),
	}
	if attempts != nil {
		j.Attempts = int(*attempts)
	}
	if maxAttempts != nil {
		j.MaxAttempts = int(*maxAttempts)
	}
	if nextRun != nil {
		j.NextRunAt = *nextRun
	}
	if created != nil {
		j.CreatedAt = *created
	}
	if updated != nil {
		j.UpdatedAt = *updated
	}
	return j, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
