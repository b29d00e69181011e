// Package gormstore is a GORM-backed job queue for single-node deployments
// and tests. It implements the same lease contract as the postgres queue.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobStore)(nil)

type jobRow struct {
	ID             string `gorm:"primaryKey"`
	DocumentID     string `gorm:"index"`
	JobType        string
	Payload        []byte
	Attempts       int
	MaxAttempts    int
	Status         string `gorm:"index:idx_jobs_ready,priority:1"`
	LeaseOwner     *string
	LeaseExpiresAt *time.Time
	NextRunAt      time.Time `gorm:"index:idx_jobs_ready,priority:2"`
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (jobRow) TableName() string { return "processing_jobs" }

var activeStatuses = []string{string(model.JobStatusLeased), string(model.JobStatusRunning)}

type JobStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *JobStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&jobRow{})
}

// Enqueue ignores tx: the GORM queue never shares a transaction with postgres.
func (s *JobStore) Enqueue(ctx context.Context, _ repository.Tx, j *model.ProcessingJob) error {
	now := s.now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.NextRunAt.IsZero() {
		j.NextRunAt = now
	}
	if j.Status == "" {
		j.Status = model.JobStatusQueued
	}
	row := toRow(j)
	row.UpdatedAt = now
	err := s.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *JobStore) LeaseNext(ctx context.Context, owner string, lease time.Duration) (*model.ProcessingJob, error) {
	var leased *jobRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		if err := tx.Model(&jobRow{}).
			Where("status IN ?", activeStatuses).
			Where("lease_expires_at < ?", now).
			Where("attempts + 1 >= max_attempts").
			Updates(map[string]interface{}{
				"status":           string(model.JobStatusDead),
				"attempts":         gorm.Expr("attempts + 1"),
				"last_error":       "lease expired on final attempt",
				"lease_owner":      nil,
				"lease_expires_at": nil,
				"updated_at":       now,
			}).Error; err != nil {
			return err
		}

		var row jobRow
		res := tx.
			Where("(status = ? AND next_run_at <= ?) OR (status IN ? AND lease_expires_at < ?)",
				string(model.JobStatusQueued), now, activeStatuses, now).
			Order("next_run_at ASC, created_at ASC").
			First(&row)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return res.Error
		}

		ok, err := s.claim(tx, &row, owner, now.Add(lease), now)
		if err != nil || !ok {
			return err
		}
		leased = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if leased == nil {
		return nil, domain.ErrNotFound
	}
	return leased.toModel(), nil
}

// claim moves the selected snapshot to leased. The update matches the
// snapshot's status, attempts and owner, so a caller holding a stale read of
// an expired lease affects no rows once another worker has re-leased it.
func (s *JobStore) claim(tx *gorm.DB, row *jobRow, owner string, exp, now time.Time) (bool, error) {
	prevStatus, prevAttempts, prevOwner := row.Status, row.Attempts, row.LeaseOwner
	attempts := prevAttempts
	if prevStatus != string(model.JobStatusQueued) {
		attempts++
	}

	q := tx.Model(&jobRow{}).Where("id = ? AND status = ? AND attempts = ?", row.ID, prevStatus, prevAttempts)
	if prevOwner == nil {
		q = q.Where("lease_owner IS NULL")
	} else {
		q = q.Where("lease_owner = ?", *prevOwner)
	}
	upd := q.Updates(map[string]interface{}{
		"status":           string(model.JobStatusLeased),
		"attempts":         attempts,
		"lease_owner":      owner,
		"lease_expires_at": exp,
		"updated_at":       now,
	})
	if upd.Error != nil {
		return false, upd.Error
	}
	if upd.RowsAffected == 0 {
		return false, nil
	}
	row.Status = string(model.JobStatusLeased)
	row.Attempts = attempts
	row.LeaseOwner = &owner
	row.LeaseExpiresAt = &exp
	row.UpdatedAt = now
	return true, nil
}

func (s *JobStore) MarkRunning(ctx context.Context, id, owner string) error {
	return s.guarded(ctx, id, owner, map[string]interface{}{
		"status":     string(model.JobStatusRunning),
		"updated_at": s.now(),
	})
}

func (s *JobStore) Complete(ctx context.Context, id, owner string) error {
	return s.guarded(ctx, id, owner, map[string]interface{}{
		"status":           string(model.JobStatusSucceeded),
		"lease_owner":      nil,
		"lease_expires_at": nil,
		"last_error":       "",
		"updated_at":       s.now(),
	})
}

func (s *JobStore) Fail(ctx context.Context, id, owner string, f model.JobFailure) error {
	status := model.JobStatusQueued
	next := f.NextRunAt
	if f.Dead {
		status = model.JobStatusDead
		next = s.now()
	}
	return s.guarded(ctx, id, owner, map[string]interface{}{
		"status":           string(status),
		"attempts":         f.Attempts,
		"next_run_at":      next,
		"last_error":       f.Error,
		"lease_owner":      nil,
		"lease_expires_at": nil,
		"updated_at":       s.now(),
	})
}

func (s *JobStore) guarded(ctx context.Context, id, owner string, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).
		Model(&jobRow{}).
		Where("id = ? AND lease_owner = ? AND status IN ?", id, owner, activeStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotOwned
	}
	return nil
}

func (s *JobStore) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.ProcessingJob, error) {
	var row jobRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *JobStore) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	if err := s.db.WithContext(ctx).Model(&jobRow{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.JobStatus]int, len(rows))
	for _, r := range rows {
		out[model.JobStatus(r.Status)] = r.Count
	}
	return out, nil
}

func toRow(j *model.ProcessingJob) *jobRow {
	r := &jobRow{
		ID:             j.ID,
		DocumentID:     j.DocumentID,
		JobType:        string(j.Type),
		Payload:        []byte(j.Payload),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		Status:         string(j.Status),
		LeaseExpiresAt: j.LeaseExpiresAt,
		NextRunAt:      j.NextRunAt.UTC(),
		LastError:      j.LastError,
		CreatedAt:      j.CreatedAt.UTC(),
		UpdatedAt:      j.UpdatedAt.UTC(),
	}
	if j.LeaseOwner != "" {
		owner := j.LeaseOwner
		r.LeaseOwner = &owner
	}
	return r
}

func (r *jobRow) toModel() *model.ProcessingJob {
	j := &model.ProcessingJob{
		ID:             r.ID,
		DocumentID:     r.DocumentID,
		Type:           model.JobType(r.JobType),
		Payload:        r.Payload,
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		Status:         model.JobStatus(r.Status),
		LeaseExpiresAt: r.LeaseExpiresAt,
		NextRunAt:      r.NextRunAt,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.LeaseOwner != nil {
		j.LeaseOwner = *r.LeaseOwner
	}
	return j
}
