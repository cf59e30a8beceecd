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

// RecordStorage implements the RecordStorage interface for Badger
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RecordStorage) SaveRecord(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *RecordStorage) SaveRecords(ctx context.Context, records []*models.Record) error {
	for _, record := range records {
		if err := s.SaveRecord(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecordStorage) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var record models.Record
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

func (s *RecordStorage) ListRecordsByRun(ctx context.Context, runID string, opts *interfaces.ListOptions) ([]*models.Record, error) {
	query := badgerhold.Where("RunID").Eq(runID).Index("RunID").SortBy("CreatedAt")
	applyListOptions(query, opts)

	var records []models.Record
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list records by run: %w", err)
	}

	result := make([]*models.Record, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *RecordStorage) CountRecordsByJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.Record{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}
