package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunEventStorage implements the append-only run audit trail on Badger
type RunEventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunEventStorage creates a new RunEventStorage instance
func NewRunEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunEventStorage {
	return &RunEventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunEventStorage) AppendEvent(ctx context.Context, event *models.RunEvent) error {
	if event.RunID == "" {
		return fmt.Errorf("run event requires a run ID")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(badgerhold.NextSequence(), event); err != nil {
		return fmt.Errorf("failed to append run event: %w", err)
	}
	return nil
}

func (s *RunEventStorage) ListEventsByRun(ctx context.Context, runID string) ([]*models.RunEvent, error) {
	var events []models.RunEvent
	query := badgerhold.Where("RunID").Eq(runID).Index("RunID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list run events: %w", err)
	}

	result := make([]*models.RunEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}
