package interventions

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/ternarybob/tendril/internal/services/classifier"
)

const (
	lowConfidenceThreshold  = 0.75
	highUrgencyConfidence   = 0.5
	hardBlockMinAttempts    = 3
	hardBlockMinBlockedHits = 2
)

// blockSignals are the attempt signals that count toward a hard block
var blockSignals = map[string]bool{
	"blocked_status_code": true,
	"blocked_detected":    true,
	"captcha_detected":    true,
}

// BlockRateFunc reports a domain's recent 403 rate
type BlockRateFunc func(ctx context.Context, domain string) float64

// Evaluation carries everything the intervention engine inspects after a
// run attempt settles. Selectors is the resolved selector set the run
// actually fetched with, whether it came from the job or a field map.
type Evaluation struct {
	Run            *models.Run
	Job            *models.Job
	FieldResults   map[string]models.FieldResult
	RequiredFields []models.FieldDef
	Selectors      map[string]models.SelectorSpec
	HTML           string
	ItemCount      int
	Status         int
	ErrorText      string
	HasSession     bool
	AccessClass    models.AccessClass
	Failure        models.FailureKind
}

// Engine detects conditions that need a human and raises intervention
// tasks for them
type Engine struct {
	store       interfaces.InterventionStorage
	events      interfaces.EventService
	miner       *Miner
	blockRate   BlockRateFunc
	snapshotDir string
	taskTTL     time.Duration
	logger      arbor.ILogger
}

// NewEngine wires the intervention engine. Tasks expire taskTTL after
// creation; zero disables expiry.
func NewEngine(
	store interfaces.InterventionStorage,
	events interfaces.EventService,
	miner *Miner,
	blockRate BlockRateFunc,
	snapshotDir string,
	taskTTL time.Duration,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		store:       store,
		events:      events,
		miner:       miner,
		blockRate:   blockRate,
		snapshotDir: snapshotDir,
		taskTTL:     taskTTL,
		logger:      logger,
	}
}

// Evaluate inspects a settled attempt and returns the intervention tasks
// it warrants. Tasks are persisted and announced before returning. A run
// raises at most one low-confidence task regardless of how many fields
// scored badly.
func (e *Engine) Evaluate(ctx context.Context, ev Evaluation) ([]*models.InterventionTask, error) {
	var tasks []*models.InterventionTask

	if task := e.detectAuthExpired(ev); task != nil {
		tasks = append(tasks, task)
	}
	if task := e.detectHardBlock(ev); task != nil {
		tasks = append(tasks, task)
	}
	if task := e.detectSelectorDrift(ev); task != nil {
		tasks = append(tasks, task)
	}
	if task := e.detectLowConfidence(ev); task != nil {
		if rule := e.coveringRule(ctx, ev.Job.Domain, task); rule != nil {
			if err := e.miner.MarkApplied(ctx, rule); err != nil && e.logger != nil {
				e.logger.Warn().Err(err).Str("rule", rule.ID).Msg("Failed to mark rule applied")
			}
			if e.logger != nil {
				e.logger.Info().
					Str("rule", rule.ID).
					Str("field", task.Context.Field).
					Str("run", ev.Run.ID).
					Msg("Low-confidence field covered by mined rule")
			}
		} else {
			tasks = append(tasks, task)
		}
	}
	if task := e.detectBlockVerdict(ev, tasks); task != nil {
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return nil, nil
	}

	rate := 0.0
	if e.blockRate != nil {
		rate = e.blockRate(ctx, ev.Job.Domain)
	}

	for _, task := range tasks {
		task.ID = common.NewInterventionID()
		task.RunID = ev.Run.ID
		task.JobID = ev.Job.ID
		task.Domain = ev.Job.Domain
		task.Status = models.InterventionOpen
		task.CreatedAt = time.Now()
		task.Priority = bumpForBlockRate(task.Priority, rate)
		if e.taskTTL > 0 {
			expires := task.CreatedAt.Add(e.taskTTL)
			task.ExpiresAt = &expires
		}

		if err := e.store.SaveIntervention(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to save intervention: %w", err)
		}

		if e.events != nil {
			_ = e.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.EventInterventionCreated,
				Payload: task,
			})
		}

		if e.logger != nil {
			e.logger.Info().
				Str("intervention", task.ID).
				Str("run", task.RunID).
				Str("kind", string(task.Kind)).
				Str("priority", string(task.Priority)).
				Msg("Intervention raised")
		}
	}

	return tasks, nil
}

// detectAuthExpired flags blocked outcomes on jobs that scrape behind a
// login
func (e *Engine) detectAuthExpired(ev Evaluation) *models.InterventionTask {
	if ev.Failure != models.FailureBlocked || !ev.Job.RequiresAuth {
		return nil
	}
	return &models.InterventionTask{
		Kind:     models.InterventionLoginRefresh,
		Priority: models.PriorityCritical,
		Context: models.InterventionContext{
			URL:    ev.Job.StartURL,
			Detail: "authenticated job blocked; session has likely expired",
		},
	}
}

// detectHardBlock flags runs where the ladder kept hitting blocks
func (e *Engine) detectHardBlock(ev Evaluation) *models.InterventionTask {
	if len(ev.Run.EngineAttempts) < hardBlockMinAttempts {
		return nil
	}

	blocked := 0
	for _, attempt := range ev.Run.EngineAttempts {
		for _, signal := range attempt.Signals {
			if blockSignals[signal] {
				blocked++
				break
			}
		}
	}
	if blocked < hardBlockMinBlockedHits {
		return nil
	}

	return &models.InterventionTask{
		Kind:     models.InterventionManualAccess,
		Priority: models.PriorityCritical,
		Context: models.InterventionContext{
			URL:    ev.Job.StartURL,
			Detail: fmt.Sprintf("%d of %d attempts blocked", blocked, len(ev.Run.EngineAttempts)),
		},
	}
}

// detectSelectorDrift flags zero extraction from a cleanly fetched page
// when the run had selectors to work with, attaching a snapshot for
// diagnosis. Blocked fetches are not drift; the block detectors own
// those.
func (e *Engine) detectSelectorDrift(ev Evaluation) *models.InterventionTask {
	if ev.ItemCount > 0 || len(ev.Selectors) == 0 || ev.Status != 200 {
		return nil
	}

	task := &models.InterventionTask{
		Kind:     models.InterventionSelectorFix,
		Priority: models.PriorityHigh,
		Context: models.InterventionContext{
			URL:    ev.Job.StartURL,
			Detail: "selectors extracted nothing from a fetched page",
		},
	}

	if ev.HTML != "" && e.snapshotDir != "" {
		hash, path, err := writeSnapshot(e.snapshotDir, ev.Run.ID, ev.HTML)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn().Err(err).Str("run", ev.Run.ID).Msg("Failed to write drift snapshot")
			}
		} else {
			task.Context.SnapshotHash = hash
			task.Context.SnapshotPath = path
		}
	}

	return task
}

// detectBlockVerdict consults the block classifier on the attempt outcome
// and raises its verdict kind unless another detector already did
func (e *Engine) detectBlockVerdict(ev Evaluation, raised []*models.InterventionTask) *models.InterventionTask {
	verdict := classifier.ClassifyBlock(classifier.BlockContext{
		Status:      ev.Status,
		ErrorText:   ev.ErrorText,
		HasSession:  ev.HasSession,
		ItemCount:   ev.ItemCount,
		AccessClass: ev.AccessClass,
	})
	if !verdict.Pause {
		return nil
	}
	for _, task := range raised {
		if task.Kind == verdict.Kind {
			return nil
		}
	}

	return &models.InterventionTask{
		Kind:     verdict.Kind,
		Priority: baselinePriority(verdict.Kind),
		Context: models.InterventionContext{
			URL:    ev.Job.StartURL,
			Detail: fmt.Sprintf("blocked outcome (status %d)", ev.Status),
		},
	}
}

// detectLowConfidence flags the worst-scoring required field under the
// confidence floor. The task carries the raw text, the parsed value and
// the scoring trail so the operator can confirm or correct without
// re-running anything.
func (e *Engine) detectLowConfidence(ev Evaluation) *models.InterventionTask {
	var worstDef models.FieldDef
	worstField := ""
	worstScore := lowConfidenceThreshold

	for _, def := range ev.RequiredFields {
		result, ok := ev.FieldResults[def.Name]
		if !ok {
			continue
		}
		if result.Confidence < worstScore {
			worstScore = result.Confidence
			worstField = def.Name
			worstDef = def
		}
	}
	if worstField == "" {
		return nil
	}

	priority := models.PriorityNormal
	if worstScore < highUrgencyConfidence {
		priority = models.PriorityHigh
	}

	result := ev.FieldResults[worstField]
	return &models.InterventionTask{
		Kind:     models.InterventionFieldConfirm,
		Priority: priority,
		Context: models.InterventionContext{
			Field:      worstField,
			FieldType:  string(worstDef.Type),
			Raw:        result.Raw,
			Parsed:     result.Value,
			Confidence: result.Confidence,
			Reasons:    result.Reasons,
			Errors:     result.Errors,
			URL:        ev.Job.StartURL,
			Detail:     fmt.Sprintf("required field %q scored %.2f", worstField, worstScore),
		},
	}
}

// coveringRule returns the approved normalization rule for a
// low-confidence field task's field, if mining has confirmed one for
// this domain. Once a field fix has been confirmed enough times the
// rule stands in for the human and the task is not raised again.
func (e *Engine) coveringRule(ctx context.Context, domain string, task *models.InterventionTask) *models.Rule {
	if e.miner == nil || task.Context.Field == "" {
		return nil
	}
	rules, err := e.miner.ApprovedRules(ctx, models.RuleFieldNormalization, domain)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to list approved rules")
		}
		return nil
	}
	for _, rule := range rules {
		if rule.Field == task.Context.Field {
			return rule
		}
	}
	return nil
}

// Resolve closes a task, feeds the rule miner, records a new selector
// revision on the job's field map when the fix touched selectors, and
// requeues the paused run
func (e *Engine) Resolve(
	ctx context.Context,
	id, note string,
	runs interfaces.RunStorage,
	queue interfaces.RunQueue,
	jobs interfaces.JobStorage,
	fieldMaps interfaces.FieldMapStorage,
) (*models.InterventionTask, error) {
	task, err := e.store.GetIntervention(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load intervention %s: %w", id, err)
	}
	if task.Status != models.InterventionOpen {
		return nil, fmt.Errorf("intervention %s is already %s", id, task.Status)
	}

	now := time.Now()
	task.Status = models.InterventionResolved
	task.ResolutionNote = note
	task.ResolvedAt = &now
	if err := e.store.SaveIntervention(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save resolved intervention: %w", err)
	}

	if e.miner != nil {
		if err := e.miner.Observe(ctx, task); err != nil && e.logger != nil {
			e.logger.Warn().Err(err).Str("intervention", id).Msg("Rule mining failed")
		}
	}

	if err := e.recordSelectorRevision(ctx, task, note, jobs, fieldMaps); err != nil && e.logger != nil {
		e.logger.Warn().Err(err).Str("intervention", id).Msg("Failed to record field map revision")
	}

	if err := e.requeueRun(ctx, task, runs, queue); err != nil {
		return nil, err
	}

	if e.events != nil {
		_ = e.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventInterventionResolved,
			Payload: task,
		})
	}

	return task, nil
}

// recordSelectorRevision bumps the field map version when a resolved
// task implies the selectors changed. The version only moves forward;
// each bump lands in the map's history.
func (e *Engine) recordSelectorRevision(
	ctx context.Context,
	task *models.InterventionTask,
	note string,
	jobs interfaces.JobStorage,
	fieldMaps interfaces.FieldMapStorage,
) error {
	if task.Kind != models.InterventionSelectorFix && task.Kind != models.InterventionFieldConfirm {
		return nil
	}
	if jobs == nil || fieldMaps == nil {
		return nil
	}

	job, err := jobs.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", task.JobID, err)
	}
	if job.FieldMapID == "" {
		return nil
	}

	fm, err := fieldMaps.GetFieldMap(ctx, job.FieldMapID)
	if err != nil {
		return fmt.Errorf("failed to load field map %s: %w", job.FieldMapID, err)
	}

	revisionNote := note
	if revisionNote == "" {
		revisionNote = fmt.Sprintf("resolved %s intervention %s", task.Kind, task.ID)
	}
	fm.BumpVersion(revisionNote)
	if err := fieldMaps.SaveFieldMap(ctx, fm); err != nil {
		return fmt.Errorf("failed to save field map %s: %w", fm.ID, err)
	}

	if e.logger != nil {
		e.logger.Info().
			Str("field_map", fm.ID).
			Int("version", fm.Version).
			Str("intervention", task.ID).
			Msg("Field map selector revision recorded")
	}
	return nil
}

// Dismiss closes a task without resolving it; the run stays paused until
// another task resolves or an operator fails it
func (e *Engine) Dismiss(ctx context.Context, id, note string) (*models.InterventionTask, error) {
	task, err := e.store.GetIntervention(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load intervention %s: %w", id, err)
	}
	if task.Status != models.InterventionOpen {
		return nil, fmt.Errorf("intervention %s is already %s", id, task.Status)
	}

	now := time.Now()
	task.Status = models.InterventionDismissed
	task.ResolutionNote = note
	task.ResolvedAt = &now
	if err := e.store.SaveIntervention(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save dismissed intervention: %w", err)
	}
	return task, nil
}

// ExpireOverdue marks open tasks past their deadline as expired,
// returning the number expired. Run on a schedule.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	open, err := e.store.ListOpenInterventions(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list open interventions: %w", err)
	}

	now := time.Now()
	expired := 0
	for _, task := range open {
		if task.ExpiresAt == nil || now.Before(*task.ExpiresAt) {
			continue
		}
		task.Status = models.InterventionExpired
		if err := e.store.SaveIntervention(ctx, task); err != nil {
			return expired, fmt.Errorf("failed to expire intervention %s: %w", task.ID, err)
		}
		expired++
		if e.logger != nil {
			e.logger.Info().
				Str("intervention", task.ID).
				Str("run", task.RunID).
				Str("kind", string(task.Kind)).
				Msg("Intervention expired unanswered")
		}
	}
	return expired, nil
}

func (e *Engine) requeueRun(
	ctx context.Context,
	task *models.InterventionTask,
	runs interfaces.RunStorage,
	queue interfaces.RunQueue,
) error {
	run, err := runs.GetRun(ctx, task.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", task.RunID, err)
	}

	// A run can settle while its task sits in the queue; only a paused
	// run goes back to work
	if run.Status != models.RunStatusWaitingForHuman {
		return nil
	}

	if err := run.Transition(models.RunStatusQueued); err != nil {
		return err
	}
	if err := runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to requeue run %s: %w", run.ID, err)
	}
	if err := queue.Enqueue(ctx, interfaces.RunMessage{RunID: run.ID, JobID: run.JobID}); err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}

	if e.logger != nil {
		e.logger.Info().Str("run", run.ID).Str("intervention", task.ID).Msg("Run requeued after resolution")
	}
	return nil
}
