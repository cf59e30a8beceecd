package interfaces

import (
	"context"

	"github.com/ternarybob/tendril/internal/models"
)

// ListOptions controls paging for list queries
type ListOptions struct {
	Limit  int
	Offset int
}

// JobStorage - interface for job persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *ListOptions) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id string) error
	CountJobs(ctx context.Context) (int, error)
}

// FieldMapStorage - interface for field map persistence
type FieldMapStorage interface {
	SaveFieldMap(ctx context.Context, fm *models.FieldMap) error
	GetFieldMap(ctx context.Context, id string) (*models.FieldMap, error)
	ListFieldMaps(ctx context.Context, opts *ListOptions) ([]*models.FieldMap, error)
	DeleteFieldMap(ctx context.Context, id string) error
}

// RunStorage - interface for run persistence
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRunsByJob(ctx context.Context, jobID string, opts *ListOptions) ([]*models.Run, error)
	ListRunsByStatus(ctx context.Context, status models.RunStatus, opts *ListOptions) ([]*models.Run, error)
	CountRunsByStatus(ctx context.Context, status models.RunStatus) (int, error)
}

// RecordStorage - interface for extracted record persistence
type RecordStorage interface {
	SaveRecord(ctx context.Context, record *models.Record) error
	SaveRecords(ctx context.Context, records []*models.Record) error
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	ListRecordsByRun(ctx context.Context, runID string, opts *ListOptions) ([]*models.Record, error)
	CountRecordsByJob(ctx context.Context, jobID string) (int, error)
}

// RunEventStorage - interface for the append-only run audit trail
type RunEventStorage interface {
	AppendEvent(ctx context.Context, event *models.RunEvent) error
	ListEventsByRun(ctx context.Context, runID string) ([]*models.RunEvent, error)
}

// DomainStatsStorage - interface for adaptive domain stats persistence
type DomainStatsStorage interface {
	SaveDomainStats(ctx context.Context, stats *models.DomainStats) error
	GetDomainStats(ctx context.Context, domain string) (*models.DomainStats, error)
	ListDomainStats(ctx context.Context) ([]*models.DomainStats, error)
}

// DomainConfigStorage - interface for per-domain operator overrides
type DomainConfigStorage interface {
	SaveDomainConfig(ctx context.Context, config *models.DomainConfig) error
	GetDomainConfig(ctx context.Context, domain string) (*models.DomainConfig, error)
	ListDomainConfigs(ctx context.Context) ([]*models.DomainConfig, error)
	DeleteDomainConfig(ctx context.Context, domain string) error
}

// InterventionStorage - interface for human task persistence
type InterventionStorage interface {
	SaveIntervention(ctx context.Context, task *models.InterventionTask) error
	GetIntervention(ctx context.Context, id string) (*models.InterventionTask, error)
	ListOpenInterventions(ctx context.Context, opts *ListOptions) ([]*models.InterventionTask, error)
	ListInterventionsByRun(ctx context.Context, runID string) ([]*models.InterventionTask, error)
	CountOpenByDomain(ctx context.Context, domain string) (int, error)
}

// RuleStorage - interface for mined rule persistence
type RuleStorage interface {
	SaveRule(ctx context.Context, rule *models.Rule) error
	GetRule(ctx context.Context, id string) (*models.Rule, error)
	FindRule(ctx context.Context, kind models.RuleKind, scope, field, pattern string) (*models.Rule, error)
	ListRulesByScope(ctx context.Context, scope string) ([]*models.Rule, error)
	ListApprovedRules(ctx context.Context, kind models.RuleKind, scope string) ([]*models.Rule, error)
}
