package interventions

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	storage "github.com/ternarybob/tendril/internal/storage/badger"
)

func newTestEngine(t *testing.T) (*Engine, *storage.BadgerDB) {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := storage.NewBadgerDBWithStore(store)
	miner := NewMiner(storage.NewRuleStorage(db, nil), nil)
	engine := NewEngine(storage.NewInterventionStorage(db, nil), nil, miner, nil, t.TempDir(), 0, nil)
	return engine, db
}

func testEvaluation() Evaluation {
	return Evaluation{
		Run: &models.Run{ID: "run_1", JobID: "job_1", Status: models.RunStatusRunning},
		Job: &models.Job{
			ID:       "job_1",
			Name:     "product scrape",
			StartURL: "https://example.com/p/1",
			Domain:   "example.com",
			Selectors: map[string]models.SelectorSpec{
				"title": {CSS: "h1"},
			},
		},
		Selectors: map[string]models.SelectorSpec{
			"title": {CSS: "h1"},
		},
		ItemCount: 1,
	}
}

func requiredDefs(names ...string) []models.FieldDef {
	defs := make([]models.FieldDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, models.FieldDef{Name: name, Type: models.FieldTypeString, Required: true})
	}
	return defs
}

func TestEvaluateCleanRunRaisesNothing(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.FieldResults = map[string]models.FieldResult{
		"title": {Value: "Widget", Confidence: 1.0},
	}
	ev.RequiredFields = requiredDefs("title")

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestEvaluateLowConfidence(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.RequiredFields = []models.FieldDef{
		{Name: "title", Type: models.FieldTypeString, Required: true},
		{Name: "price", Type: models.FieldTypeMoney, Required: true},
	}
	ev.FieldResults = map[string]models.FieldResult{
		"title": {Value: "Widget", Confidence: 0.7},
		"price": {Raw: "N/A", Value: nil, Confidence: 0.4, Errors: []string{"invalid_money"}},
	}

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, models.InterventionFieldConfirm, task.Kind)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, models.InterventionOpen, task.Status)

	// The operator gets the whole scoring trail, not just the field name
	assert.Equal(t, "price", task.Context.Field)
	assert.Equal(t, "money", task.Context.FieldType)
	assert.Equal(t, "N/A", task.Context.Raw)
	assert.Nil(t, task.Context.Parsed)
	assert.InDelta(t, 0.4, task.Context.Confidence, 0.001)
	assert.Equal(t, []string{"invalid_money"}, task.Context.Errors)
}

func TestEvaluateLowConfidenceNormalPriority(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.RequiredFields = requiredDefs("title")
	ev.FieldResults = map[string]models.FieldResult{
		"title": {Value: "Widget", Confidence: 0.6},
	}

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.PriorityNormal, tasks[0].Priority)
}

func TestEvaluateOptionalFieldsIgnored(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.RequiredFields = nil
	ev.FieldResults = map[string]models.FieldResult{
		"subtitle": {Value: nil, Confidence: 0.1},
	}

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestEvaluateSelectorDrift(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.ItemCount = 0
	ev.Status = 200
	ev.HTML = "<html><body><div>redesigned page</div></body></html>"

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, models.InterventionSelectorFix, task.Kind)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Len(t, task.Context.SnapshotHash, 8)
	require.NotEmpty(t, task.Context.SnapshotPath)

	data, err := os.ReadFile(task.Context.SnapshotPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "redesigned page")
}

func TestEvaluateSelectorDriftFromFieldMapSelectors(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Jobs that rely on a field map carry no selectors of their own;
	// drift detection keys on what the run actually fetched with
	ev := testEvaluation()
	ev.Job.Selectors = nil
	ev.Selectors = map[string]models.SelectorSpec{
		"title": {CSS: ".product h1"},
	}
	ev.ItemCount = 0
	ev.Status = 200
	ev.HTML = "<html><body><main>nothing matches</main></body></html>"

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.InterventionSelectorFix, tasks[0].Kind)
}

func TestEvaluateAuthExpired(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.Job.RequiresAuth = true
	ev.Failure = models.FailureBlocked

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.InterventionLoginRefresh, tasks[0].Kind)
	assert.Equal(t, models.PriorityCritical, tasks[0].Priority)
}

func TestEvaluateHardBlock(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.Run.EngineAttempts = []models.EngineAttempt{
		{Engine: models.EngineHTTP, Signals: []string{"blocked_status_code"}},
		{Engine: models.EngineBrowser, Signals: []string{"blocked_detected"}},
		{Engine: models.EngineProvider, Signals: nil},
	}

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.InterventionManualAccess, tasks[0].Kind)
	assert.Equal(t, models.PriorityCritical, tasks[0].Priority)
}

func TestEvaluateHardBlockNeedsThreeAttempts(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.Run.EngineAttempts = []models.EngineAttempt{
		{Engine: models.EngineHTTP, Signals: []string{"blocked_status_code"}},
		{Engine: models.EngineBrowser, Signals: []string{"blocked_detected"}},
	}

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestEvaluateBlockVerdict(t *testing.T) {
	engine, _ := newTestEngine(t)

	ev := testEvaluation()
	ev.ItemCount = 0
	ev.Status = 403
	ev.Failure = models.FailureBlocked

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.InterventionManualAccess, tasks[0].Kind)
	assert.Equal(t, models.PriorityHigh, tasks[0].Priority)

	// The same status with a live session points at the login instead
	ev.HasSession = true
	tasks, err = engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.InterventionLoginRefresh, tasks[0].Kind)
}

func TestEvaluateBlockRateBumpsPriority(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.blockRate = func(_ context.Context, _ string) float64 { return 0.8 }

	ev := testEvaluation()
	ev.RequiredFields = requiredDefs("title")
	ev.FieldResults = map[string]models.FieldResult{
		"title": {Value: "Widget", Confidence: 0.6},
	}

	tasks, err := engine.Evaluate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.PriorityHigh, tasks[0].Priority)
}

func TestResolveRequeuesRun(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	runs := storage.NewRunStorage(db, nil)

	run := &models.Run{
		ID:        "run_1",
		JobID:     "job_1",
		Status:    models.RunStatusWaitingForHuman,
		CreatedAt: time.Now(),
	}
	require.NoError(t, runs.SaveRun(ctx, run))

	ev := testEvaluation()
	ev.Job.RequiresAuth = true
	ev.Failure = models.FailureBlocked
	tasks, err := engine.Evaluate(ctx, ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	queue := &fakeQueue{}
	resolved, err := engine.Resolve(ctx, tasks[0].ID, "refreshed login", runs, queue, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.InterventionResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	reloaded, err := runs.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, reloaded.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "run_1", queue.enqueued[0].RunID)

	// Resolving twice is rejected
	_, err = engine.Resolve(ctx, tasks[0].ID, "again", runs, queue, nil, nil)
	assert.Error(t, err)
}

func TestResolveSelectorFixBumpsFieldMapVersion(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	runs := storage.NewRunStorage(db, nil)
	jobs := storage.NewJobStorage(db, nil)
	fieldMaps := storage.NewFieldMapStorage(db, nil)

	fm := &models.FieldMap{
		ID:   "fm_1",
		Name: "product fields",
		Fields: []models.FieldDef{
			{Name: "title", Type: models.FieldTypeString, Required: true, Selector: models.SelectorSpec{CSS: "h1"}},
		},
	}
	require.NoError(t, fieldMaps.SaveFieldMap(ctx, fm))
	require.Equal(t, 1, fm.Version)
	require.Len(t, fm.History, 1)

	job := &models.Job{
		ID:         "job_1",
		Name:       "product scrape",
		StartURL:   "https://example.com/p/1",
		Domain:     "example.com",
		FieldMapID: "fm_1",
	}
	require.NoError(t, jobs.SaveJob(ctx, job))

	run := &models.Run{ID: "run_1", JobID: "job_1", Status: models.RunStatusWaitingForHuman, CreatedAt: time.Now()}
	require.NoError(t, runs.SaveRun(ctx, run))

	ev := testEvaluation()
	ev.ItemCount = 0
	ev.Status = 200
	ev.HTML = "<html><body>redesigned</body></html>"
	tasks, err := engine.Evaluate(ctx, ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, models.InterventionSelectorFix, tasks[0].Kind)

	_, err = engine.Resolve(ctx, tasks[0].ID, "pointed title at .product h1", runs, &fakeQueue{}, jobs, fieldMaps)
	require.NoError(t, err)

	reloaded, err := fieldMaps.GetFieldMap(ctx, "fm_1")
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Version)
	require.Len(t, reloaded.History, reloaded.Version)
	assert.Equal(t, 2, reloaded.History[1].Version)
	assert.Equal(t, "pointed title at .product h1", reloaded.History[1].Note)
}

func TestExpireOverdueMarksStaleTasks(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.taskTTL = time.Nanosecond
	ctx := context.Background()

	ev := testEvaluation()
	ev.Job.RequiresAuth = true
	ev.Failure = models.FailureBlocked
	tasks, err := engine.Evaluate(ctx, ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].ExpiresAt)

	expired, err := engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	reloaded, err := engine.store.GetIntervention(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.InterventionExpired, reloaded.Status)

	// Nothing left to expire on the next sweep
	expired, err = engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestExpireOverdueSkipsTasksWithoutDeadline(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ev := testEvaluation()
	ev.Job.RequiresAuth = true
	ev.Failure = models.FailureBlocked
	tasks, err := engine.Evaluate(ctx, ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Nil(t, tasks[0].ExpiresAt)

	expired, err := engine.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestMinerApprovesAtThreshold(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	rules := storage.NewRuleStorage(db, nil)

	task := &models.InterventionTask{
		ID:     "int_1",
		Domain: "example.com",
		Kind:   models.InterventionSelectorFix,
		Context: models.InterventionContext{
			SnapshotHash: "a1b2c3d4",
		},
	}

	// selector_pattern approves at two confirmations
	require.NoError(t, engine.miner.Observe(ctx, task))
	rule, err := rules.FindRule(ctx, models.RuleSelectorPattern, "example.com", "", "a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, models.RuleCandidate, rule.Status)
	assert.Equal(t, 1, rule.Support)

	require.NoError(t, engine.miner.Observe(ctx, task))
	rule, err = rules.FindRule(ctx, models.RuleSelectorPattern, "example.com", "", "a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, models.RuleApproved, rule.Status)
	assert.Equal(t, 2, rule.Support)
}

func TestApprovedFieldRuleSuppressesRepeatTask(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	rules := storage.NewRuleStorage(db, nil)

	resolved := &models.InterventionTask{
		ID:     "int_1",
		Domain: "example.com",
		Kind:   models.InterventionFieldConfirm,
		Context: models.InterventionContext{
			Field: "price",
		},
	}

	// field_normalization approves at three confirmations
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.miner.Observe(ctx, resolved))
	}
	rule, err := rules.FindRule(ctx, models.RuleFieldNormalization, "example.com", "price", "price")
	require.NoError(t, err)
	require.Equal(t, models.RuleApproved, rule.Status)

	// The same low-confidence shape no longer pages a human
	ev := testEvaluation()
	ev.RequiredFields = requiredDefs("price")
	ev.FieldResults = map[string]models.FieldResult{
		"price": {Value: nil, Confidence: 0.4},
	}

	tasks, err := engine.Evaluate(ctx, ev)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	rule, err = rules.FindRule(ctx, models.RuleFieldNormalization, "example.com", "price", "price")
	require.NoError(t, err)
	assert.Equal(t, models.RuleApplied, rule.Status)

	// An uncovered field still raises
	ev.RequiredFields = requiredDefs("title")
	ev.FieldResults = map[string]models.FieldResult{
		"title": {Value: "Widget", Confidence: 0.4},
	}
	tasks, err = engine.Evaluate(ctx, ev)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.InterventionFieldConfirm, tasks[0].Kind)
	assert.Equal(t, "title", tasks[0].Context.Field)
}

func TestMinerAuthRefreshApprovesImmediately(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	rules := storage.NewRuleStorage(db, nil)

	task := &models.InterventionTask{
		ID:     "int_1",
		Domain: "example.com",
		Kind:   models.InterventionLoginRefresh,
	}

	require.NoError(t, engine.miner.Observe(ctx, task))
	rule, err := rules.FindRule(ctx, models.RuleAuthRefreshTrigger, "example.com", "", "example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RuleApproved, rule.Status)
}

func TestMinerIgnoresOneOffKinds(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	rules := storage.NewRuleStorage(db, nil)

	task := &models.InterventionTask{
		ID:     "int_1",
		Domain: "example.com",
		Kind:   models.InterventionCaptchaSolve,
	}

	require.NoError(t, engine.miner.Observe(ctx, task))
	_, err := rules.FindRule(ctx, models.RuleSelectorPattern, "example.com", "", "")
	assert.Error(t, err)
}

type fakeQueue struct {
	enqueued []interfaces.RunMessage
}

func (q *fakeQueue) Enqueue(_ context.Context, msg interfaces.RunMessage) error {
	q.enqueued = append(q.enqueued, msg)
	return nil
}

func (q *fakeQueue) Receive(_ context.Context) (*interfaces.RunMessage, func() error, error) {
	return nil, nil, nil
}

func (q *fakeQueue) Extend(_ context.Context, _ string, _ time.Duration) error { return nil }

func (q *fakeQueue) Close() error { return nil }
