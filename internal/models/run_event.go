package models

import "time"

// RunEventType identifies an entry in a run's append-only audit trail
type RunEventType string

const (
	RunEventStarted              RunEventType = "run.started"
	RunEventProgress             RunEventType = "run.progress"
	RunEventCompleted            RunEventType = "run.completed"
	RunEventFailed               RunEventType = "run.failed"
	RunEventInterventionCreated  RunEventType = "intervention.created"
	RunEventInterventionResolved RunEventType = "intervention.resolved"
)

// RunEvent is one append-only audit entry for a run
type RunEvent struct {
	ID        uint64         `json:"id" badgerhold:"key"` // Auto-incremented insert key
	RunID     string         `json:"run_id" badgerhold:"index"`
	Type      RunEventType   `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
