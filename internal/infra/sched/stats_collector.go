// Package sched runs periodic housekeeping on a cron schedule.
package sched

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/infra/metrics"
)

// JobStats is the slice of the job repository the collector reads.
type JobStats interface {
	Stats(ctx context.Context) (map[model.JobStatus]int, error)
}

// PoolStats reports connection pool usage as total, idle, acquired, max.
type PoolStats func() (total, idle, acquired, max int32)

var allStatuses = []model.JobStatus{
	model.JobStatusQueued, model.JobStatusLeased, model.JobStatusRunning,
	model.JobStatusSucceeded, model.JobStatusDead,
}

// StatsCollector refreshes queue depth and pool gauges.
type StatsCollector struct {
	spec  string
	jobs  JobStats
	pool  PoolStats
	log   *zerolog.Logger
	limit time.Duration
}

func NewStatsCollector(spec string, jobs JobStats, pool PoolStats, logger *zerolog.Logger) *StatsCollector {
	if spec == "" {
		spec = "@every 30s"
	}
	l := logger.With().Str("component", "StatsCollector").Logger()
	return &StatsCollector{spec: spec, jobs: jobs, pool: pool, log: &l, limit: 10 * time.Second}
}

// Run schedules Collect and blocks until ctx is done.
func (s *StatsCollector) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.Collect(ctx) }); err != nil {
		return err
	}
	s.log.Info().Str("spec", s.spec).Msg("Starting stats collector")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("Stopping stats collector")
	return ctx.Err()
}

// Collect takes one sample.
func (s *StatsCollector) Collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.limit)
	defer cancel()

	if s.pool != nil {
		metrics.SetDBPoolStats(s.pool())
	}
	counts, err := s.jobs.Stats(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("queue stats failed")
		return
	}
	for _, st := range allStatuses {
		metrics.SetJobsInState(string(st), counts[st])
	}
}
