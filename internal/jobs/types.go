// Package jobs defines the async job model for pipeline runs triggered over
// the API and processed by the worker.
package jobs

import (
	"context"
	"time"
)

// JobKind says which pipeline operation a job runs.
type JobKind string

const (
	// JobKindCleanup runs the cleanup normalizer.
	JobKindCleanup JobKind = "run_cleanup"
	// JobKindCategorization runs the two-stage categorization pipeline.
	JobKindCategorization JobKind = "run_categorization"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// PipelineJob is one queued pipeline run. Failed jobs are not retried by
// the queue: retry policy belongs to the external caller.
type PipelineJob struct {
	JobID string  `json:"job_id"`
	Kind  JobKind `json:"kind"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is the human-readable outcome message on success.
	Result string `json:"result,omitempty"`
	// Error contains failure details when the job failed.
	Error string `json:"error,omitempty"`
}

// Handler runs one job and returns its outcome message.
type Handler func(ctx context.Context, job *PipelineJob) (string, error)

// Publisher enqueues pipeline jobs.
type Publisher interface {
	Publish(ctx context.Context, job *PipelineJob) error
	Close() error
}

// Consumer processes queued pipeline jobs.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

// JobStore tracks job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *PipelineJob) error
	GetJob(ctx context.Context, jobID string) (*PipelineJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*PipelineJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Kind   JobKind
	Status JobStatus
	Limit  int
}
