package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunStatusQueued          RunStatus = "queued"
	RunStatusRunning         RunStatus = "running"
	RunStatusWaitingForHuman RunStatus = "waiting_for_human"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
)

// IsTerminal returns true for states a run never leaves
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// legalTransitions holds the allowed state machine edges
var legalTransitions = map[RunStatus][]RunStatus{
	RunStatusQueued:          {RunStatusRunning},
	RunStatusRunning:         {RunStatusWaitingForHuman, RunStatusCompleted, RunStatusFailed},
	RunStatusWaitingForHuman: {RunStatusQueued, RunStatusFailed},
}

// CanTransition reports whether moving from s to next is legal
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Engine identifies a fetch engine tier
type Engine string

const (
	EngineHTTP     Engine = "http"
	EngineBrowser  Engine = "browser"
	EngineProvider Engine = "provider"
)

// TierOrder is the escalation ladder, cheapest first
var TierOrder = []Engine{EngineHTTP, EngineBrowser, EngineProvider}

// TierIndex returns the position of an engine on the ladder, -1 if unknown
func TierIndex(e Engine) int {
	for i, t := range TierOrder {
		if t == e {
			return i
		}
	}
	return -1
}

// NextTier returns the engine one rung up, or "" at the top
func NextTier(e Engine) Engine {
	idx := TierIndex(e)
	if idx < 0 || idx+1 >= len(TierOrder) {
		return ""
	}
	return TierOrder[idx+1]
}

// FailureKind is the fixed taxonomy of run failure codes
type FailureKind string

const (
	FailureBlocked          FailureKind = "blocked"
	FailureRateLimited      FailureKind = "rate_limited"
	FailureTimeout          FailureKind = "timeout"
	FailureNetwork          FailureKind = "network"
	FailureBadResponse      FailureKind = "bad_response"
	FailureExtractionFailed FailureKind = "extraction_failed"
	FailureMaxEscalations   FailureKind = "max_escalations"
	FailureUnknown          FailureKind = "unknown"
)

// EngineAttempt is one rung of the escalation ladder, recorded on the run
type EngineAttempt struct {
	Engine    Engine    `json:"engine"`
	Status    int       `json:"status"` // HTTP status, 0 when transport failed
	Signals   []string  `json:"signals,omitempty"`
	Decision  string    `json:"decision"` // "proceed", "escalate:<reason>", "fail:<kind>"
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is a single execution of a job
type Run struct {
	ID                string          `json:"id" badgerhold:"key"`
	JobID             string          `json:"job_id" badgerhold:"index"`
	Status            RunStatus       `json:"status" badgerhold:"index"`
	Attempt           int             `json:"attempt"`
	MaxAttempts       int             `json:"max_attempts"`
	RequestedStrategy Engine          `json:"requested_strategy,omitempty"` // From job engine mode or routing
	ResolvedStrategy  Engine          `json:"resolved_strategy,omitempty"`  // Engine that finally served the run
	FailureCode       FailureKind     `json:"failure_code,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Stats             map[string]any  `json:"stats,omitempty"`
	EngineAttempts    []EngineAttempt `json:"engine_attempts,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
}

// Transition moves the run to the next status, rejecting illegal edges
func (r *Run) Transition(next RunStatus) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("illegal run transition %s -> %s", r.Status, next)
	}
	r.Status = next
	now := time.Now()
	switch next {
	case RunStatusRunning:
		r.StartedAt = &now
	case RunStatusCompleted, RunStatusFailed:
		r.FinishedAt = &now
	}
	return nil
}

// RecordAttempt appends an engine attempt to the run's audit log
func (r *Run) RecordAttempt(a EngineAttempt) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	r.EngineAttempts = append(r.EngineAttempts, a)
}

// ToJSON serializes the run to JSON
func (r *Run) ToJSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run: %w", err)
	}
	return string(data), nil
}
