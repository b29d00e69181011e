package adapter

import (
	"context"
	"time"
)

type JobEventKind string

const (
	JobEventLeased    JobEventKind = "job.leased"
	JobEventSucceeded JobEventKind = "job.succeeded"
	JobEventRetry     JobEventKind = "job.retry"
	JobEventDead      JobEventKind = "job.dead"
)

type JobEvent struct {
	ID         string       `json:"id"`
	Kind       JobEventKind `json:"kind"`
	JobID      string       `json:"job_id"`
	JobType    string       `json:"job_type"`
	DocumentID string       `json:"document_id"`
	Attempts   int          `json:"attempts"`
	Error      string       `json:"error,omitempty"`
	At         time.Time    `json:"at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, ev JobEvent) error
	Close() error
}
