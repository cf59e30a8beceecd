package models

import "time"

// FieldResult carries a typed field value with provenance and confidence
type FieldResult struct {
	Value      any      `json:"value"`
	Raw        string   `json:"raw"`
	Confidence float64  `json:"confidence"`
	Errors     []string `json:"errors,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	Source     string   `json:"source,omitempty"` // "css", "jsonld", "meta", "nextdata", "consensus"
}

// Record is one extracted item persisted for a run
type Record struct {
	ID           string                 `json:"id" badgerhold:"key"`
	RunID        string                 `json:"run_id" badgerhold:"index"`
	JobID        string                 `json:"job_id" badgerhold:"index"`
	URL          string                 `json:"url"`
	Fields       map[string]FieldResult `json:"fields"`
	SnapshotPath string                 `json:"snapshot_path,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
