package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsProcessedTotal, jobDuration, jobsInState, leaseConflicts) }

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_jobs_processed_total",
			Help: "Jobs processed, labeled by job type and outcome.",
		},
		[]string{"type", "status"}, // status: succeeded | retry | dead | stale
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docintel_job_duration_seconds",
			Help:    "Wall time of one leased job attempt.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	jobsInState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docintel_jobs_in_state",
			Help: "Rows of the job table per status, refreshed by the stats collector.",
		},
		[]string{"status"},
	)

	leaseConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docintel_lease_conflicts_total",
			Help: "Lifecycle writes rejected because another owner holds the lease.",
		},
	)
)

func IncJob(jobType, status string) {
	jobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func ObserveJobDuration(jobType string, d time.Duration) {
	jobDuration.WithLabelValues(norm(jobType)).Observe(d.Seconds())
}

func SetJobsInState(status string, n int) {
	jobsInState.WithLabelValues(norm(status)).Set(float64(n))
}

func IncLeaseConflict() { leaseConflicts.Inc() }
