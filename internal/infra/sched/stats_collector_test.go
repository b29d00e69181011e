package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/infra/logging"
	"document-intelligence/internal/infra/metrics"
)

type fakeStats struct {
	counts map[model.JobStatus]int
	err    error
	calls  int
}

func (f *fakeStats) Stats(context.Context) (map[model.JobStatus]int, error) {
	f.calls++
	return f.counts, f.err
}

func gaugeValue(t *testing.T, name, label, value string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func TestStatsCollector_Collect(t *testing.T) {
	metrics.MustRegister()
	jobs := &fakeStats{counts: map[model.JobStatus]int{model.JobStatusQueued: 7, model.JobStatusDead: 2}}
	pool := func() (int32, int32, int32, int32) { return 4, 3, 1, 10 }
	c := NewStatsCollector("", jobs, pool, logging.Nop())

	c.Collect(context.Background())

	assert.Equal(t, 7.0, gaugeValue(t, "docintel_jobs_in_state", "status", "queued"))
	assert.Equal(t, 2.0, gaugeValue(t, "docintel_jobs_in_state", "status", "dead"))
	assert.Equal(t, 0.0, gaugeValue(t, "docintel_jobs_in_state", "status", "running"))
	assert.Equal(t, 10.0, gaugeValue(t, "docintel_db_pool_connections", "state", "max"))
}

func TestStatsCollector_StatsErrorIsLogged(t *testing.T) {
	jobs := &fakeStats{err: errors.New("db down")}
	c := NewStatsCollector("@every 1h", jobs, nil, logging.Nop())
	c.Collect(context.Background())
	assert.Equal(t, 1, jobs.calls)
}

func TestStatsCollector_RunStopsWithContext(t *testing.T) {
	c := NewStatsCollector("@every 1h", &fakeStats{}, nil, logging.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)

	bad := NewStatsCollector("not a spec", &fakeStats{}, nil, logging.Nop())
	assert.Error(t, bad.Run(context.Background()))
}
