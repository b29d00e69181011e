package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
)

func setupStore(t *testing.T) (*JobStore, *time.Time) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewJobStore(db)
	store.now = func() time.Time { return clock }
	require.NoError(t, store.Migrate(context.Background()))
	return store, &clock
}

func enqueue(t *testing.T, s *JobStore, id string, at time.Time, maxAttempts int) {
	t.Helper()
	j, err := model.NewJob(id, model.IngestPayload{DocumentID: "doc-" + id}, maxAttempts)
	require.NoError(t, err)
	j.NextRunAt = at
	j.CreatedAt = at
	require.NoError(t, s.Enqueue(context.Background(), nil, j))
}

func TestJobStore_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue returns ErrNotFound", func(t *testing.T) {
		s, _ := setupStore(t)
		_, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("oldest eligible job is leased once", func(t *testing.T) {
		s, clock := setupStore(t)
		enqueue(t, s, "job-2", clock.Add(-time.Second), 5)
		enqueue(t, s, "job-1", clock.Add(-time.Minute), 5)
		enqueue(t, s, "job-later", clock.Add(time.Hour), 5)

		first, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "job-1", first.ID)
		assert.Equal(t, model.JobStatusLeased, first.Status)
		assert.Equal(t, "worker-a", first.LeaseOwner)

		second, err := s.LeaseNext(ctx, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "job-2", second.ID)

		_, err = s.LeaseNext(ctx, "worker-c", time.Minute)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "future job must not be leased")
	})

	t.Run("non-owner transitions are rejected", func(t *testing.T) {
		s, clock := setupStore(t)
		enqueue(t, s, "job-1", *clock, 5)
		_, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, s.MarkRunning(ctx, "job-1", "worker-b"), domain.ErrJobNotOwned)
		assert.ErrorIs(t, s.Complete(ctx, "job-1", "worker-b"), domain.ErrJobNotOwned)
		require.NoError(t, s.MarkRunning(ctx, "job-1", "worker-a"))
		require.NoError(t, s.Complete(ctx, "job-1", "worker-a"))
		assert.ErrorIs(t, s.Complete(ctx, "job-1", "worker-a"), domain.ErrJobNotOwned, "terminal jobs accept no transitions")

		got, err := s.FindByID(ctx, nil, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusSucceeded, got.Status)
		assert.Empty(t, got.LeaseOwner)
	})

	t.Run("expired lease moves to the next worker with attempts incremented", func(t *testing.T) {
		s, clock := setupStore(t)
		enqueue(t, s, "job-1", *clock, 5)
		_, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.MarkRunning(ctx, "job-1", "worker-a"))

		*clock = clock.Add(2 * time.Minute)
		got, err := s.LeaseNext(ctx, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "worker-b", got.LeaseOwner)
		assert.Equal(t, 1, got.Attempts)
		assert.ErrorIs(t, s.Complete(ctx, "job-1", "worker-a"), domain.ErrJobNotOwned)
	})

	t.Run("stale snapshot of an expired lease cannot be claimed twice", func(t *testing.T) {
		s, clock := setupStore(t)
		enqueue(t, s, "job-1", *clock, 5)
		_, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)

		*clock = clock.Add(2 * time.Minute)
		var stale jobRow
		require.NoError(t, s.db.Where("id = ?", "job-1").First(&stale).Error)

		got, err := s.LeaseNext(ctx, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "worker-b", got.LeaseOwner)

		ok, err := s.claim(s.db.WithContext(ctx), &stale, "worker-c", clock.Add(time.Minute), *clock)
		require.NoError(t, err)
		assert.False(t, ok, "second claim of the same expired row must affect no rows")

		row, err := s.FindByID(ctx, nil, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "worker-b", row.LeaseOwner)
		assert.Equal(t, 1, row.Attempts)
	})

	t.Run("expired lease on the final attempt is dead-lettered", func(t *testing.T) {
		s, clock := setupStore(t)
		enqueue(t, s, "job-1", *clock, 1)
		_, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)

		*clock = clock.Add(2 * time.Minute)
		_, err = s.LeaseNext(ctx, "worker-b", time.Minute)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		got, err := s.FindByID(ctx, nil, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDead, got.Status)
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("Fail schedules backoff and dead-letters at max attempts", func(t *testing.T) {
		s, clock := setupStore(t)
		enqueue(t, s, "job-1", *clock, 2)

		leased, err := s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)
		f := leased.NextFailure(*clock, errors.New("provider down"))
		require.NoError(t, s.Fail(ctx, "job-1", "worker-a", f))

		got, err := s.FindByID(ctx, nil, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusQueued, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.True(t, got.NextRunAt.Equal(clock.Add(5*time.Second)))

		_, err = s.LeaseNext(ctx, "worker-a", time.Minute)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "retry waits for backoff")

		*clock = clock.Add(6 * time.Second)
		leased, err = s.LeaseNext(ctx, "worker-a", time.Minute)
		require.NoError(t, err)
		f = leased.NextFailure(*clock, errors.New("provider down"))
		assert.True(t, f.Dead)
		require.NoError(t, s.Fail(ctx, "job-1", "worker-a", f))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats[model.JobStatusDead])
	})
}
