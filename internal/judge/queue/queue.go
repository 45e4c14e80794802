package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job is one enqueued unit of work. Payload stays opaque to the queue;
// decoding happens at the consumer boundary.
type Job struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  int64           `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// Handler processes one delivered job. A non-nil error (or a panic) counts
// as a failed attempt and triggers the queue's retry policy.
type Handler func(ctx context.Context, job Job) error

// SubscribeOptions control delivery, retry and observability behavior.
type SubscribeOptions struct {
	// Concurrency bounds how many jobs are processed at once.
	Concurrency int
	// MaxAttempts is the total number of delivery attempts per job.
	MaxAttempts int
	// RetryBaseDelay is doubled on every failed attempt, capped at RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// VisibilityTimeout is how long a claimed job may run before a janitor
	// pass considers it stalled and redelivers it.
	VisibilityTimeout time.Duration
	// PollInterval is the idle sleep between claim attempts.
	PollInterval time.Duration

	// Side-channel diagnostics; not part of the correctness contract.
	OnCompleted func(job Job)
	OnFailed    func(job Job, err error)
	OnStalled   func(jobID string)
}

// Stats is an operator-facing snapshot of queue depth.
type Stats struct {
	Pending int64 `json:"pending"`
	Delayed int64 `json:"delayed"`
	Active  int64 `json:"active"`
	Failed  int64 `json:"failed"`
}

// JobQueue is the durable, prioritized work queue contract.
// Implementations are explicitly constructed and carry a Start/Stop
// lifecycle; nothing happens at import time.
type JobQueue interface {
	// Enqueue stores a job and returns the queue-assigned job id.
	Enqueue(ctx context.Context, payload []byte, priority int) (string, error)
	// Subscribe registers the single consumer; must precede Start.
	Subscribe(handler Handler, opts SubscribeOptions) error
	Start() error
	Stop(ctx context.Context) error

	// Operator surface.
	Stats(ctx context.Context) (Stats, error)
	FailedJobs(ctx context.Context, limit int64) ([]Job, error)
	RequeueFailed(ctx context.Context, jobID string) error
	PurgeFailed(ctx context.Context) (int64, error)
}
