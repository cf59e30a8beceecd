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

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) ListRunsByJob(ctx context.Context, jobID string, opts *interfaces.ListOptions) ([]*models.Run, error) {
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("CreatedAt").Reverse()
	applyListOptions(query, opts)

	var runs []models.Run
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs by job: %w", err)
	}

	result := make([]*models.Run, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) ListRunsByStatus(ctx context.Context, status models.RunStatus, opts *interfaces.ListOptions) ([]*models.Run, error) {
	query := badgerhold.Where("Status").Eq(status).Index("Status").SortBy("CreatedAt").Reverse()
	applyListOptions(query, opts)

	var runs []models.Run
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs by status: %w", err)
	}

	result := make([]*models.Run, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) CountRunsByStatus(ctx context.Context, status models.RunStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Run{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return int(count), nil
}

// applyListOptions applies paging to a query in place
func applyListOptions(query *badgerhold.Query, opts *interfaces.ListOptions) {
	if opts == nil {
		return
	}
	if opts.Limit > 0 {
		query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query.Skip(opts.Offset)
	}
}
