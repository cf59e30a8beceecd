package models

import "time"

// InterventionKind names the human action a paused run is waiting on
type InterventionKind string

const (
	InterventionLoginRefresh InterventionKind = "login_refresh"
	InterventionSelectorFix  InterventionKind = "selector_fix"
	InterventionFieldConfirm InterventionKind = "field_confirm"
	InterventionCaptchaSolve InterventionKind = "captcha_solve"
	InterventionManualAccess InterventionKind = "manual_access"
)

// InterventionPriority orders the human work queue
type InterventionPriority string

const (
	PriorityLow      InterventionPriority = "low"
	PriorityNormal   InterventionPriority = "normal"
	PriorityHigh     InterventionPriority = "high"
	PriorityCritical InterventionPriority = "critical"
)

// InterventionStatus is the task lifecycle
type InterventionStatus string

const (
	InterventionOpen      InterventionStatus = "open"
	InterventionResolved  InterventionStatus = "resolved"
	InterventionDismissed InterventionStatus = "dismissed"
	InterventionExpired   InterventionStatus = "expired"
)

// InterventionContext carries what the operator needs to act. The
// Raw/Parsed/Confidence group is only populated for field_confirm
// tasks, where the operator judges a single extracted value.
type InterventionContext struct {
	Field        string   `json:"field,omitempty"`
	FieldType    string   `json:"field_type,omitempty"`
	Raw          string   `json:"raw,omitempty"`
	Parsed       any      `json:"parsed,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
	Reasons      []string `json:"reasons,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	URL          string   `json:"url,omitempty"`
	SnapshotHash string   `json:"snapshot_hash,omitempty"` // md5, first 8 hex chars
	SnapshotPath string   `json:"snapshot_path,omitempty"`
	Detail       string   `json:"detail,omitempty"`
}

// InterventionTask is one unit of human work attached to a run
type InterventionTask struct {
	ID             string               `json:"id" badgerhold:"key"`
	RunID          string               `json:"run_id" badgerhold:"index"`
	JobID          string               `json:"job_id" badgerhold:"index"`
	Domain         string               `json:"domain" badgerhold:"index"`
	Kind           InterventionKind     `json:"kind"`
	Priority       InterventionPriority `json:"priority"`
	Status         InterventionStatus   `json:"status" badgerhold:"index"`
	Context        InterventionContext  `json:"context"`
	ResolutionNote string               `json:"resolution_note,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
	ResolvedAt     *time.Time           `json:"resolved_at,omitempty"`
}
