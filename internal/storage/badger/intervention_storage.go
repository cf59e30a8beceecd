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

// InterventionStorage implements human task persistence for Badger
type InterventionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewInterventionStorage creates a new InterventionStorage instance
func NewInterventionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.InterventionStorage {
	return &InterventionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *InterventionStorage) SaveIntervention(ctx context.Context, task *models.InterventionTask) error {
	if task.ID == "" {
		return fmt.Errorf("intervention ID is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save intervention: %w", err)
	}
	return nil
}

func (s *InterventionStorage) GetIntervention(ctx context.Context, id string) (*models.InterventionTask, error) {
	var task models.InterventionTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("intervention %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get intervention: %w", err)
	}
	return &task, nil
}

func (s *InterventionStorage) ListOpenInterventions(ctx context.Context, opts *interfaces.ListOptions) ([]*models.InterventionTask, error) {
	query := badgerhold.Where("Status").Eq(models.InterventionOpen).Index("Status").SortBy("CreatedAt")
	applyListOptions(query, opts)

	var tasks []models.InterventionTask
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list open interventions: %w", err)
	}

	result := make([]*models.InterventionTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *InterventionStorage) ListInterventionsByRun(ctx context.Context, runID string) ([]*models.InterventionTask, error) {
	var tasks []models.InterventionTask
	query := badgerhold.Where("RunID").Eq(runID).Index("RunID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list interventions by run: %w", err)
	}

	result := make([]*models.InterventionTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *InterventionStorage) CountOpenByDomain(ctx context.Context, domain string) (int, error) {
	count, err := s.db.Store().Count(&models.InterventionTask{},
		badgerhold.Where("Domain").Eq(domain).And("Status").Eq(models.InterventionOpen))
	if err != nil {
		return 0, fmt.Errorf("failed to count open interventions: %w", err)
	}
	return int(count), nil
}
