package interfaces

import (
	"context"
	"time"
)

// RunMessage is the payload carried on the run queue
type RunMessage struct {
	RunID string `json:"run_id"`
	JobID string `json:"job_id"`
}

// RunQueue is the durable work queue feeding the orchestration workers.
// Receive returns the message plus an ack function that removes it; an
// unacked message becomes visible again after the visibility timeout.
type RunQueue interface {
	Enqueue(ctx context.Context, msg RunMessage) error
	Receive(ctx context.Context) (*RunMessage, func() error, error)
	Extend(ctx context.Context, messageID string, duration time.Duration) error
	Close() error
}
