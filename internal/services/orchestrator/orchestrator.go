package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/ternarybob/tendril/internal/services/classifier"
	"github.com/ternarybob/tendril/internal/services/escalation"
	"github.com/ternarybob/tendril/internal/services/extraction"
	"github.com/ternarybob/tendril/internal/services/fields"
	"github.com/ternarybob/tendril/internal/services/intelligence"
	"github.com/ternarybob/tendril/internal/services/interventions"
	"github.com/ternarybob/tendril/internal/services/sessions"
	storage "github.com/ternarybob/tendril/internal/storage/badger"
)

// availabler is implemented by engines that can be configured out
type availabler interface {
	Available() bool
}

// Orchestrator drives a run through its lifecycle: engine selection,
// the escalation ladder, the field pipeline and intervention handling
type Orchestrator struct {
	jobs          interfaces.JobStorage
	fieldMaps     interfaces.FieldMapStorage
	runs          interfaces.RunStorage
	records       interfaces.RecordStorage
	runEvents     interfaces.RunEventStorage
	domainConfigs interfaces.DomainConfigStorage
	queue         interfaces.RunQueue
	events        interfaces.EventService
	engines       map[models.Engine]interfaces.FetchEngine
	adaptive      *intelligence.Service
	ladder        *escalation.Ladder
	pool          interfaces.SessionPool
	prober        *sessions.Prober
	interventions *interventions.Engine
	config        *common.Config
	logger        arbor.ILogger
}

// Deps bundles the orchestrator's collaborators
type Deps struct {
	Jobs          interfaces.JobStorage
	FieldMaps     interfaces.FieldMapStorage
	Runs          interfaces.RunStorage
	Records       interfaces.RecordStorage
	RunEvents     interfaces.RunEventStorage
	DomainConfigs interfaces.DomainConfigStorage
	Queue         interfaces.RunQueue
	Events        interfaces.EventService
	Engines       map[models.Engine]interfaces.FetchEngine
	Adaptive      *intelligence.Service
	Ladder        *escalation.Ladder
	Sessions      interfaces.SessionPool
	Prober        *sessions.Prober
	Interventions *interventions.Engine
	Config        *common.Config
	Logger        arbor.ILogger
}

// New wires an orchestrator from its dependencies
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		jobs:          deps.Jobs,
		fieldMaps:     deps.FieldMaps,
		runs:          deps.Runs,
		records:       deps.Records,
		runEvents:     deps.RunEvents,
		domainConfigs: deps.DomainConfigs,
		queue:         deps.Queue,
		events:        deps.Events,
		engines:       deps.Engines,
		adaptive:      deps.Adaptive,
		ladder:        deps.Ladder,
		pool:          deps.Sessions,
		prober:        deps.Prober,
		interventions: deps.Interventions,
		config:        deps.Config,
		logger:        deps.Logger,
	}
}

// CreateRun queues a new run for a job
func (o *Orchestrator) CreateRun(ctx context.Context, jobID string) (*models.Run, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = o.config.Scraper.MaxAttempts
	}

	run := &models.Run{
		ID:          common.NewRunID(),
		JobID:       job.ID,
		Status:      models.RunStatusQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}
	if job.EngineMode.IsForced() {
		run.RequestedStrategy = models.Engine(job.EngineMode)
	}

	if err := o.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	if err := o.queue.Enqueue(ctx, interfaces.RunMessage{RunID: run.ID, JobID: job.ID}); err != nil {
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}
	return run, nil
}

// ExecuteRun drives one queued run to a settled state: completed, failed,
// or waiting for a human
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID string) error {
	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run.Status.IsTerminal() {
		return nil
	}

	job, err := o.jobs.GetJob(ctx, run.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", run.JobID, err)
	}

	logger := o.logger.WithCorrelationId(run.ID)

	if err := run.Transition(models.RunStatusRunning); err != nil {
		return err
	}
	run.Attempt++
	if run.MaxAttempts > 0 && run.Attempt > run.MaxAttempts {
		logger.Warn().
			Int("attempt", run.Attempt).
			Int("max_attempts", run.MaxAttempts).
			Msg("Run is out of attempts")
		return o.failRun(ctx, run, job, nil, models.FailureMaxEscalations, "attempt budget exhausted")
	}
	if err := o.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	o.announce(ctx, run, models.RunEventStarted, interfaces.EventRunStarted, map[string]any{
		"job_id":  job.ID,
		"attempt": run.Attempt,
	})

	logger.Info().
		Str("job", job.ID).
		Str("url", job.StartURL).
		Int("attempt", run.Attempt).
		Msg("Run started")

	fieldMap, err := o.resolveFieldMap(ctx, job)
	if err != nil {
		return o.failRun(ctx, run, job, nil, models.FailureUnknown, err.Error())
	}
	selectors := resolveSelectors(job, fieldMap)

	session := o.acquireSession(ctx, job, logger)
	if job.RequiresAuth {
		if paused, err := o.ensureAuth(ctx, run, job, session, logger); err != nil || paused {
			return err
		}
	}

	domainConfig := o.domainConfig(ctx, job.Domain)
	mode := job.EngineMode
	if mode == "" {
		mode = models.EngineModeAuto
	}
	engine := o.startEngine(ctx, job, mode, domainConfig, session)
	run.RequestedStrategy = engine

	return o.escalationLoop(ctx, run, job, fieldMap, selectors, session, domainConfig, mode, engine, logger)
}

// escalationLoop walks the engine ladder until the run settles
func (o *Orchestrator) escalationLoop(
	ctx context.Context,
	run *models.Run,
	job *models.Job,
	fieldMap *models.FieldMap,
	selectors map[string]models.SelectorSpec,
	session *models.Session,
	domainConfig *models.DomainConfig,
	mode models.EngineMode,
	engine models.Engine,
	logger arbor.ILogger,
) error {
	escalationsUsed := 0
	runCost := 0.0

	for {
		result, fetchErr := o.fetch(ctx, engine, job, selectors, session)
		runCost += intelligence.EngineCost(engine)

		status := 0
		html := ""
		itemCount := 0
		if result != nil {
			status = result.Status
			html = result.HTML
			itemCount = len(result.Items)
		}
		o.adaptive.RecordBlock403(ctx, job.Domain, status == 403)
		o.observeSession(ctx, session, status, html, fetchErr)

		signal := detectSignal(engine, status, html, itemCount, len(selectors) > 0, fetchErr)
		decision := o.ladder.Decide(engine, mode, signal, escalationsUsed)

		attempt := models.EngineAttempt{
			Engine:   engine,
			Status:   status,
			Decision: decision.String(),
			Success:  decision.Action == escalation.ActionProceed && itemCount > 0,
		}
		if signal != "" {
			attempt.Signals = []string{signal}
		}
		run.RecordAttempt(attempt)

		switch decision.Action {
		case escalation.ActionProceed:
			// A clean fetch with nothing extracted is never a completed
			// run; pause for a selector fix or fail outright
			if itemCount == 0 {
				o.adaptive.RecordOutcome(ctx, job.Domain, engine, false, escalationsUsed, 0, runCost)
				tasks, evalErr := o.interventions.Evaluate(ctx, interventions.Evaluation{
					Run:         run,
					Job:         job,
					Selectors:   selectors,
					HTML:        html,
					ItemCount:   itemCount,
					Status:      status,
					HasSession:  session != nil,
					AccessClass: domainConfig.AccessClass,
					Failure:     models.FailureExtractionFailed,
				})
				if evalErr != nil {
					logger.Warn().Err(evalErr).Msg("Intervention evaluation failed")
				}
				if len(tasks) > 0 {
					return o.pauseRun(ctx, run, tasks, logger)
				}
				return o.failRun(ctx, run, job, &engine, models.FailureExtractionFailed, "fetch succeeded but extracted nothing")
			}
			return o.completeRun(ctx, run, job, fieldMap, selectors, domainConfig, engine, session, result, escalationsUsed, runCost, logger)

		case escalation.ActionEscalate:
			escalationsUsed++
			logger.Info().
				Str("from", string(engine)).
				Str("to", string(decision.NextEngine)).
				Str("signal", signal).
				Msg("Escalating engine tier")
			o.announce(ctx, run, models.RunEventProgress, interfaces.EventRunProgress, map[string]any{
				"engine": string(decision.NextEngine),
				"signal": signal,
			})
			engine = decision.NextEngine
			continue

		case escalation.ActionFail:
			kind := failureKind(decision.Reason, status, fetchErr)
			o.adaptive.RecordOutcome(ctx, job.Domain, engine, false, escalationsUsed, 0, runCost)

			errText := signal
			if fetchErr != nil {
				errText = fetchErr.Error()
			}
			tasks, evalErr := o.interventions.Evaluate(ctx, interventions.Evaluation{
				Run:         run,
				Job:         job,
				Selectors:   selectors,
				HTML:        html,
				ItemCount:   itemCount,
				Status:      status,
				ErrorText:   errText,
				HasSession:  session != nil,
				AccessClass: domainConfig.AccessClass,
				Failure:     kind,
			})
			if evalErr != nil {
				logger.Warn().Err(evalErr).Msg("Intervention evaluation failed")
			}
			if len(tasks) > 0 {
				return o.pauseRun(ctx, run, tasks, logger)
			}
			return o.failRun(ctx, run, job, &engine, kind, decision.Reason)
		}
	}
}

// completeRun runs the field pipeline, persists records, raises any
// low-confidence intervention and settles the run as completed
func (o *Orchestrator) completeRun(
	ctx context.Context,
	run *models.Run,
	job *models.Job,
	fieldMap *models.FieldMap,
	selectors map[string]models.SelectorSpec,
	domainConfig *models.DomainConfig,
	engine models.Engine,
	session *models.Session,
	result *interfaces.FetchResult,
	escalationsUsed int,
	runCost float64,
	logger arbor.ILogger,
) error {
	processor := o.fieldProcessor(domainConfig)
	alternates := extraction.CollectSources(result.HTML)

	var records []*models.Record
	var firstFields map[string]models.FieldResult
	for _, item := range result.Items {
		fieldResults := make(map[string]models.FieldResult, len(fieldMap.Fields))
		for _, def := range fieldMap.Fields {
			raw := rawValue(item[def.Name])
			fieldResults[def.Name] = processor.ProcessField(def, raw, alternates[def.Name])
		}
		if firstFields == nil {
			firstFields = fieldResults
		}
		records = append(records, &models.Record{
			ID:        common.NewRecordID(),
			RunID:     run.ID,
			JobID:     job.ID,
			URL:       job.StartURL,
			Fields:    fieldResults,
			CreatedAt: time.Now(),
		})
	}

	if len(records) > 0 {
		if err := o.records.SaveRecords(ctx, records); err != nil {
			return o.failRun(ctx, run, job, &engine, models.FailureUnknown, err.Error())
		}
	}

	tasks, err := o.interventions.Evaluate(ctx, interventions.Evaluation{
		Run:            run,
		Job:            job,
		FieldResults:   firstFields,
		RequiredFields: fieldMap.RequiredFields(),
		Selectors:      selectors,
		ItemCount:      len(result.Items),
		Status:         result.Status,
		HasSession:     session != nil,
		AccessClass:    domainConfig.AccessClass,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Intervention evaluation failed")
	}

	o.adaptive.RecordOutcome(ctx, job.Domain, engine, true, escalationsUsed, len(records), runCost)

	run.ResolvedStrategy = engine
	run.Stats = map[string]any{
		"records":       len(records),
		"escalations":   escalationsUsed,
		"engine":        string(engine),
		"cost":          runCost,
		"interventions": len(tasks),
	}
	if err := run.Transition(models.RunStatusCompleted); err != nil {
		return err
	}
	if err := o.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save completed run: %w", err)
	}
	o.announce(ctx, run, models.RunEventCompleted, interfaces.EventRunCompleted, run.Stats)

	logger.Info().
		Int("records", len(records)).
		Str("engine", string(engine)).
		Int("escalations", escalationsUsed).
		Msg("Run completed")
	return nil
}

// pauseRun parks the run for a human
func (o *Orchestrator) pauseRun(ctx context.Context, run *models.Run, tasks []*models.InterventionTask, logger arbor.ILogger) error {
	if err := run.Transition(models.RunStatusWaitingForHuman); err != nil {
		return err
	}
	if err := o.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save paused run: %w", err)
	}

	kinds := make([]string, 0, len(tasks))
	for _, task := range tasks {
		kinds = append(kinds, string(task.Kind))
	}
	o.announce(ctx, run, models.RunEventProgress, interfaces.EventRunProgress, map[string]any{
		"status":        string(models.RunStatusWaitingForHuman),
		"interventions": kinds,
	})

	logger.Info().Strs("interventions", kinds).Msg("Run paused for human intervention")
	return nil
}

// failRun settles the run as failed
func (o *Orchestrator) failRun(
	ctx context.Context,
	run *models.Run,
	job *models.Job,
	engine *models.Engine,
	kind models.FailureKind,
	message string,
) error {
	run.FailureCode = kind
	run.ErrorMessage = message
	if engine != nil {
		run.ResolvedStrategy = *engine
	}
	if err := run.Transition(models.RunStatusFailed); err != nil {
		return err
	}
	if err := o.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save failed run: %w", err)
	}
	o.announce(ctx, run, models.RunEventFailed, interfaces.EventRunFailed, map[string]any{
		"failure": string(kind),
		"message": message,
	})

	o.logger.Warn().
		Str("run", run.ID).
		Str("job", job.ID).
		Str("failure", string(kind)).
		Msg("Run failed")
	return nil
}

// fetch dispatches to the engine adapter for the tier
func (o *Orchestrator) fetch(
	ctx context.Context,
	engine models.Engine,
	job *models.Job,
	selectors map[string]models.SelectorSpec,
	session *models.Session,
) (*interfaces.FetchResult, error) {
	adapter, ok := o.engines[engine]
	if !ok {
		return nil, fmt.Errorf("no adapter for engine %s", engine)
	}
	if a, ok := adapter.(availabler); ok && !a.Available() {
		return nil, fmt.Errorf("engine %s is not configured", engine)
	}

	req := &interfaces.FetchRequest{
		URL:       job.StartURL,
		Mode:      job.CrawlMode,
		List:      job.ListConfig,
		Selectors: selectors,
		Session:   session,
		Profile:   job.BrowserProfile,
		Region:    o.config.Fields.DefaultRegion,
	}
	return adapter.Fetch(ctx, req)
}

// ensureAuth guarantees a usable session for an authenticated job, pausing
// the run when one cannot be had. Returns true when the run was paused.
func (o *Orchestrator) ensureAuth(
	ctx context.Context,
	run *models.Run,
	job *models.Job,
	session *models.Session,
	logger arbor.ILogger,
) (bool, error) {
	valid := session != nil
	if valid && o.prober != nil {
		result, err := o.prober.Probe(ctx, session, job.StartURL)
		if err == nil && result == sessions.ProbeInvalid {
			valid = false
			_ = o.pool.MarkFailure(ctx, session)
		}
	}
	if valid {
		return false, nil
	}

	tasks, err := o.interventions.Evaluate(ctx, interventions.Evaluation{
		Run:        run,
		Job:        job,
		HasSession: session != nil,
		Failure:    models.FailureBlocked,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Intervention evaluation failed")
	}
	if len(tasks) == 0 {
		// Evaluate always raises login_refresh for a blocked auth job;
		// reaching here means storage trouble, fail loudly
		return false, o.failRun(ctx, run, job, nil, models.FailureBlocked, "no usable session for authenticated job")
	}
	return true, o.pauseRun(ctx, run, tasks, logger)
}

// acquireSession fetches a session from the pool when one exists
func (o *Orchestrator) acquireSession(ctx context.Context, job *models.Job, logger arbor.ILogger) *models.Session {
	if o.pool == nil {
		return nil
	}
	session, err := o.pool.Get(ctx, job.Domain, job.Proxy)
	if err != nil {
		if errors.Is(err, sessions.ErrCircuitOpen) {
			logger.Warn().Str("domain", job.Domain).Msg("Session circuit open")
		}
		return nil
	}
	return session
}

// observeSession feeds fetch outcomes back into the session pool
func (o *Orchestrator) observeSession(ctx context.Context, session *models.Session, status int, html string, fetchErr error) {
	if session == nil {
		return
	}
	switch {
	case fetchErr != nil:
		_ = o.pool.MarkFailure(ctx, session)
	case escalation.HasCaptchaElement(html):
		_ = o.pool.MarkCaptcha(ctx, session)
	case status == 401 || status == 403 || status == 429:
		_ = o.pool.MarkFailure(ctx, session)
	case status >= 200 && status < 300:
		_ = o.pool.MarkSuccess(ctx, session)
	}
}

// startEngine picks the first ladder rung for the run
func (o *Orchestrator) startEngine(
	ctx context.Context,
	job *models.Job,
	mode models.EngineMode,
	domainConfig *models.DomainConfig,
	session *models.Session,
) models.Engine {
	if mode.IsForced() {
		return models.Engine(mode)
	}

	switch domainConfig.AccessClass {
	case models.AccessInfra:
		return models.EngineProvider
	case models.AccessHuman:
		if session == nil && o.adaptive.BlockRate403(ctx, job.Domain) >= 0.8 {
			return models.EngineProvider
		}
	}

	return o.adaptive.ChooseEngine(ctx, job.Domain)
}

// resolveFieldMap loads the job's field map, falling back to a minimal
// title map so every run has typed output
func (o *Orchestrator) resolveFieldMap(ctx context.Context, job *models.Job) (*models.FieldMap, error) {
	if job.FieldMapID != "" {
		fm, err := o.fieldMaps.GetFieldMap(ctx, job.FieldMapID)
		if err != nil {
			return nil, fmt.Errorf("failed to load field map %s: %w", job.FieldMapID, err)
		}
		return fm, nil
	}

	return &models.FieldMap{
		ID:   "default",
		Name: "default",
		Fields: []models.FieldDef{
			{
				Name:     "title",
				Type:     models.FieldTypeString,
				Required: true,
				Selector: models.SelectorSpec{CSS: "h1"},
			},
		},
	}, nil
}

// domainConfig loads per-domain overrides, defaulting to public access
func (o *Orchestrator) domainConfig(ctx context.Context, domain string) *models.DomainConfig {
	config, err := o.domainConfigs.GetDomainConfig(ctx, domain)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to load domain config")
		}
		return &models.DomainConfig{Domain: domain, AccessClass: models.AccessPublic}
	}
	if config.AccessClass == "" {
		config.AccessClass = models.AccessPublic
	}
	return config
}

// fieldProcessor builds the typed pipeline with domain region overrides
func (o *Orchestrator) fieldProcessor(domainConfig *models.DomainConfig) *fields.Processor {
	region := o.config.Fields.DefaultRegion
	if domainConfig.Region != "" {
		region = domainConfig.Region
	}
	return fields.NewProcessor(fields.ParseContext{
		Region: region,
		Scheme: o.config.Fields.DefaultScheme,
	}, o.logger)
}

// announce appends a run audit event and mirrors it on the event bus
func (o *Orchestrator) announce(ctx context.Context, run *models.Run, eventType models.RunEventType, busType interfaces.EventType, payload map[string]any) {
	event := &models.RunEvent{
		RunID:     run.ID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := o.runEvents.AppendEvent(ctx, event); err != nil {
		o.logger.Warn().Err(err).Str("run", run.ID).Msg("Failed to append run event")
	}
	if o.events != nil {
		_ = o.events.Publish(ctx, interfaces.Event{Type: busType, Payload: event})
	}
}

// resolveSelectors merges the field map's selectors with the job's
// explicit overrides
func resolveSelectors(job *models.Job, fieldMap *models.FieldMap) map[string]models.SelectorSpec {
	selectors := make(map[string]models.SelectorSpec)
	for _, def := range fieldMap.Fields {
		if def.Selector.CSS != "" {
			selectors[def.Name] = def.Selector
		}
	}
	for name, spec := range job.Selectors {
		selectors[name] = spec
	}
	return selectors
}

// detectSignal runs the tier-appropriate signal detectors on a fetch
// outcome
func detectSignal(engine models.Engine, status int, html string, itemCount int, hasRequired bool, fetchErr error) string {
	switch engine {
	case models.EngineHTTP:
		if fetchErr != nil {
			kind := classifier.Classify(0, fetchErr)
			if classifier.IsBlockSignal(kind) {
				return escalation.SignalBlockedStatus
			}
			return string(kind)
		}
		return escalation.FirstHTTPSignal(escalation.HTTPContext{
			Status:         status,
			HTML:           html,
			ExtractedCount: itemCount,
			HasRequired:    hasRequired,
		})

	case models.EngineBrowser:
		return escalation.FirstBrowserSignal(escalation.BrowserContext{
			Status:           status,
			HTML:             html,
			ExtractedCount:   itemCount,
			HasRequired:      hasRequired,
			NavigationFailed: fetchErr != nil,
			CaptchaPresent:   escalation.HasCaptchaElement(html),
		})

	default:
		// Top of the ladder: any unusable outcome is terminal
		if fetchErr != nil {
			return escalation.SignalBlockedDetected
		}
		return escalation.FirstBrowserSignal(escalation.BrowserContext{
			Status:         status,
			HTML:           html,
			ExtractedCount: itemCount,
			HasRequired:    hasRequired,
		})
	}
}

// failureKind maps a terminal ladder reason onto the failure taxonomy
func failureKind(reason string, status int, fetchErr error) models.FailureKind {
	switch reason {
	case string(models.FailureMaxEscalations):
		return models.FailureMaxEscalations
	case escalation.SignalExtractionFail, escalation.SignalRobotsNoindex, escalation.SignalJSApp:
		return models.FailureExtractionFailed
	case escalation.SignalBlockedStatus, escalation.SignalBlockedDetected, escalation.SignalCaptchaDetected:
		if status == 429 {
			return models.FailureRateLimited
		}
		return models.FailureBlocked
	case escalation.SignalNavigationFailed:
		return classifier.Classify(0, fetchErr)
	}

	if kind := models.FailureKind(reason); isKnownFailure(kind) {
		return kind
	}
	return classifier.Classify(status, fetchErr)
}

func isKnownFailure(kind models.FailureKind) bool {
	switch kind {
	case models.FailureBlocked, models.FailureRateLimited, models.FailureTimeout,
		models.FailureNetwork, models.FailureBadResponse, models.FailureExtractionFailed,
		models.FailureMaxEscalations, models.FailureUnknown:
		return true
	}
	return false
}

// rawValue renders an extracted item value for the field pipeline
func rawValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		return strings.Join(value, ", ")
	default:
		return fmt.Sprintf("%v", value)
	}
}
