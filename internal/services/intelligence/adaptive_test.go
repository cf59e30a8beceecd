package intelligence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/models"
	storage "github.com/ternarybob/tendril/internal/storage/badger"
	"github.com/timshannon/badgerhold/v4"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	hold, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { hold.Close() })

	db := storage.NewBadgerDBWithStore(hold)
	store := storage.NewDomainStatsStorage(db, arbor.NewLogger())
	return NewService(store, arbor.NewLogger())
}

func record(s *Service, domain string, engine models.Engine, successes, failures int) {
	ctx := context.Background()
	for i := 0; i < successes; i++ {
		s.RecordOutcome(ctx, domain, engine, true, 0, 1, EngineCost(engine))
	}
	for i := 0; i < failures; i++ {
		s.RecordOutcome(ctx, domain, engine, false, 0, 0, EngineCost(engine))
	}
}

func TestChooseEngineDefaultsToHTTPWithoutHistory(t *testing.T) {
	s := newTestService(t)
	assert.Equal(t, models.EngineHTTP, s.ChooseEngine(context.Background(), "new.example.com"))
}

func TestChooseEngineNoBiasBelowMinAttempts(t *testing.T) {
	s := newTestService(t)
	// Four failures is still below the history gate
	record(s, "sparse.example.com", models.EngineHTTP, 0, 4)
	assert.Equal(t, models.EngineHTTP, s.ChooseEngine(context.Background(), "sparse.example.com"))
}

func TestChooseEngineBiasesToBrowserWhenHTTPFails(t *testing.T) {
	s := newTestService(t)
	record(s, "spa.example.com", models.EngineHTTP, 0, 6)
	assert.Equal(t, models.EngineBrowser, s.ChooseEngine(context.Background(), "spa.example.com"))
}

func TestChooseEngineStaysOnProvenHTTP(t *testing.T) {
	s := newTestService(t)
	record(s, "plain.example.com", models.EngineHTTP, 9, 1)
	assert.Equal(t, models.EngineHTTP, s.ChooseEngine(context.Background(), "plain.example.com"))
}

func TestChooseEngineUsesProvenBrowserInMiddleBand(t *testing.T) {
	s := newTestService(t)
	// http is mediocre: 50%
	record(s, "mixed.example.com", models.EngineHTTP, 3, 3)
	// browser is proven: > 85%
	record(s, "mixed.example.com", models.EngineBrowser, 9, 0)
	assert.Equal(t, models.EngineBrowser, s.ChooseEngine(context.Background(), "mixed.example.com"))
}

func TestChooseEngineUsesProvenBrowserWithThinHTTPHistory(t *testing.T) {
	s := newTestService(t)
	// No http history at all, but browser is proven: start there
	record(s, "rendered.example.com", models.EngineBrowser, 6, 0)
	assert.Equal(t, models.EngineBrowser, s.ChooseEngine(context.Background(), "rendered.example.com"))
}

func TestChooseEngineMiddleBandWithoutProvenBrowser(t *testing.T) {
	s := newTestService(t)
	record(s, "meh.example.com", models.EngineHTTP, 3, 3)
	record(s, "meh.example.com", models.EngineBrowser, 2, 2)
	assert.Equal(t, models.EngineHTTP, s.ChooseEngine(context.Background(), "meh.example.com"))
}

func TestAvgEscalationsEMA(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.RecordOutcome(ctx, "ema.example.com", models.EngineHTTP, true, 2, 1, 1.0)
	s.mu.Lock()
	first := s.cache["ema.example.com"].AvgEscalations
	s.mu.Unlock()
	assert.InDelta(t, 0.6, first, 0.0001) // 0.3*2 + 0.7*0

	s.RecordOutcome(ctx, "ema.example.com", models.EngineHTTP, true, 1, 1, 1.0)
	s.mu.Lock()
	second := s.cache["ema.example.com"].AvgEscalations
	s.mu.Unlock()
	assert.InDelta(t, 0.72, second, 0.0001) // 0.3*1 + 0.7*0.6
}

func TestRecordBlock403EMA(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.RecordBlock403(ctx, "block.example.com", true)
	assert.InDelta(t, 0.1, s.BlockRate403(ctx, "block.example.com"), 0.0001)

	s.RecordBlock403(ctx, "block.example.com", false)
	assert.InDelta(t, 0.09, s.BlockRate403(ctx, "block.example.com"), 0.0001)
}

func TestRecordOutcomeTracksYieldAndCost(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.RecordOutcome(ctx, "yield.example.com", models.EngineHTTP, true, 0, 10, 1.0)
	s.RecordOutcome(ctx, "yield.example.com", models.EngineBrowser, true, 1, 10, 4.0)

	s.mu.Lock()
	stats := s.cache["yield.example.com"]
	s.mu.Unlock()
	assert.Equal(t, 20, stats.TotalRecords)
	assert.InDelta(t, 5.0, stats.TotalCost, 0.0001)
	assert.InDelta(t, 0.25, stats.AvgCostPerRecord, 0.0001)

	// A run that yields nothing still burns cost
	s.RecordOutcome(ctx, "yield.example.com", models.EngineProvider, false, 2, 0, 10.0)
	s.mu.Lock()
	stats = s.cache["yield.example.com"]
	s.mu.Unlock()
	assert.Equal(t, 20, stats.TotalRecords)
	assert.InDelta(t, 15.0, stats.TotalCost, 0.0001)
	assert.InDelta(t, 0.75, stats.AvgCostPerRecord, 0.0001)
}

func TestEngineCosts(t *testing.T) {
	assert.Equal(t, 1.0, EngineCost(models.EngineHTTP))
	assert.Equal(t, 3.0, EngineCost(models.EngineBrowser))
	assert.Equal(t, 10.0, EngineCost(models.EngineProvider))
}

func TestStatsPersistAcrossServiceInstances(t *testing.T) {
	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	hold, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { hold.Close() })

	db := storage.NewBadgerDBWithStore(hold)
	store := storage.NewDomainStatsStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := NewService(store, arbor.NewLogger())
	for i := 0; i < 6; i++ {
		first.RecordOutcome(ctx, "persist.example.com", models.EngineHTTP, false, 1, 0, 1.0)
	}

	// A fresh service sees the same history
	second := NewService(store, arbor.NewLogger())
	assert.Equal(t, models.EngineBrowser, second.ChooseEngine(ctx, "persist.example.com"))
}
