package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestJobStorageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := &models.Job{
		ID:         "job-1",
		Name:       "listing scrape",
		StartURL:   "https://shop.example.com/widgets",
		EngineMode: models.EngineModeAuto,
	}
	require.NoError(t, storage.SaveJob(ctx, job))

	// Domain is derived on save
	assert.Equal(t, "shop.example.com", job.Domain)

	got, err := storage.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Domain, got.Domain)
	assert.False(t, got.CreatedAt.IsZero())

	count, err := storage.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, storage.DeleteJob(ctx, "job-1"))
	_, err = storage.GetJob(ctx, "job-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestJobStorageRejectsInvalidJob(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	job := &models.Job{ID: "job-bad", Name: "", StartURL: "not-a-url"}
	err := storage.SaveJob(context.Background(), job)
	assert.Error(t, err)
}

func TestRunStorageStatusQueries(t *testing.T) {
	db := newTestDB(t)
	storage := NewRunStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i, status := range []models.RunStatus{
		models.RunStatusQueued, models.RunStatusQueued, models.RunStatusCompleted,
	} {
		run := &models.Run{
			ID:        "run-" + string(rune('a'+i)),
			JobID:     "job-1",
			Status:    status,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, storage.SaveRun(ctx, run))
	}

	queued, err := storage.ListRunsByStatus(ctx, models.RunStatusQueued, nil)
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	count, err := storage.CountRunsByStatus(ctx, models.RunStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	byJob, err := storage.ListRunsByJob(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Len(t, byJob, 3)
}

func TestRunEventStorageAppendOnly(t *testing.T) {
	db := newTestDB(t)
	storage := NewRunEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, eventType := range []models.RunEventType{
		models.RunEventStarted, models.RunEventProgress, models.RunEventCompleted,
	} {
		require.NoError(t, storage.AppendEvent(ctx, &models.RunEvent{
			RunID: "run-1",
			Type:  eventType,
		}))
	}

	events, err := storage.ListEventsByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.RunEventStarted, events[0].Type)
	assert.Equal(t, models.RunEventCompleted, events[2].Type)
}

func TestInterventionStorageOpenQueries(t *testing.T) {
	db := newTestDB(t)
	storage := NewInterventionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	open := &models.InterventionTask{
		ID:       "int-1",
		RunID:    "run-1",
		Domain:   "shop.example.com",
		Kind:     models.InterventionSelectorFix,
		Priority: models.PriorityHigh,
		Status:   models.InterventionOpen,
	}
	resolved := &models.InterventionTask{
		ID:       "int-2",
		RunID:    "run-1",
		Domain:   "shop.example.com",
		Kind:     models.InterventionLoginRefresh,
		Priority: models.PriorityCritical,
		Status:   models.InterventionResolved,
	}
	require.NoError(t, storage.SaveIntervention(ctx, open))
	require.NoError(t, storage.SaveIntervention(ctx, resolved))

	openTasks, err := storage.ListOpenInterventions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, openTasks, 1)
	assert.Equal(t, "int-1", openTasks[0].ID)

	count, err := storage.CountOpenByDomain(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	byRun, err := storage.ListInterventionsByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, byRun, 2)
}

func TestRuleStorageFindAndApproved(t *testing.T) {
	db := newTestDB(t)
	storage := NewRuleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	rule := &models.Rule{
		ID:      "rule-1",
		Kind:    models.RuleSelectorPattern,
		Scope:   "shop.example.com",
		Field:   "title",
		Pattern: "h1.product-name",
		Support: 1,
		Status:  models.RuleCandidate,
	}
	require.NoError(t, storage.SaveRule(ctx, rule))

	found, err := storage.FindRule(ctx, models.RuleSelectorPattern, "shop.example.com", "title", "h1.product-name")
	require.NoError(t, err)
	assert.Equal(t, "rule-1", found.ID)

	approved, err := storage.ListApprovedRules(ctx, models.RuleSelectorPattern, "shop.example.com")
	require.NoError(t, err)
	assert.Empty(t, approved)

	rule.Status = models.RuleApproved
	require.NoError(t, storage.SaveRule(ctx, rule))

	approved, err = storage.ListApprovedRules(ctx, models.RuleSelectorPattern, "shop.example.com")
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}
