package model

import (
	"encoding/json"
	"time"
)

type JobType string

const (
	JobTypeIngest  JobType = "ingest"
	JobTypeExplain JobType = "explain"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusLeased    JobStatus = "leased"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusDead      JobStatus = "dead"
)

const (
	DefaultMaxAttempts = 5
	maxBackoff         = 300 * time.Second
	baseBackoff        = 5 * time.Second
)

// ProcessingJob is one unit of work on the shared queue. Only the lease
// manager mutates it after creation.
type ProcessingJob struct {
	ID             string
	DocumentID     string
	Type           JobType
	Payload        json.RawMessage
	Attempts       int
	MaxAttempts    int
	Status         JobStatus
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	NextRunAt      time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobFailure describes the transition applied to a job whose attempt failed.
type JobFailure struct {
	Attempts  int
	Dead      bool
	NextRunAt time.Time
	Error     string
}

// NewJob builds a queued job for the given payload, runnable immediately.
func NewJob(id string, p JobPayload, maxAttempts int) (*ProcessingJob, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now().UTC()
	return &ProcessingJob{
		ID:          id,
		DocumentID:  p.Document(),
		Type:        p.Type(),
		Payload:     raw,
		MaxAttempts: maxAttempts,
		Status:      JobStatusQueued,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Backoff returns the retry delay after the given number of failed attempts:
// min(300s, 5s * 2^(attempts-1)).
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// NextFailure computes the state after one more failed attempt.
func (j *ProcessingJob) NextFailure(now time.Time, cause error) JobFailure {
	attempts := j.Attempts + 1
	max := j.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	f := JobFailure{Attempts: attempts, Error: msg, Dead: attempts >= max}
	if !f.Dead {
		f.NextRunAt = now.Add(Backoff(attempts))
	}
	return f
}

func (j *ProcessingJob) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusDead
}
