package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// FieldMapStorage implements the FieldMapStorage interface for Badger
type FieldMapStorage struct {
	db       *BadgerDB
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewFieldMapStorage creates a new FieldMapStorage instance
func NewFieldMapStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FieldMapStorage {
	return &FieldMapStorage{
		db:       db,
		logger:   logger,
		validate: validator.New(),
	}
}

func (s *FieldMapStorage) SaveFieldMap(ctx context.Context, fm *models.FieldMap) error {
	if fm.ID == "" {
		return fmt.Errorf("field map ID is required")
	}
	if err := s.validate.Struct(fm); err != nil {
		return fmt.Errorf("invalid field map: %w", err)
	}

	now := time.Now()
	if fm.CreatedAt.IsZero() {
		fm.CreatedAt = now
	}
	fm.UpdatedAt = now
	fm.EnsureVersioned()

	if err := s.db.Store().Upsert(fm.ID, fm); err != nil {
		return fmt.Errorf("failed to save field map: %w", err)
	}
	return nil
}

func (s *FieldMapStorage) GetFieldMap(ctx context.Context, id string) (*models.FieldMap, error) {
	var fm models.FieldMap
	if err := s.db.Store().Get(id, &fm); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("field map %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get field map: %w", err)
	}
	return &fm, nil
}

func (s *FieldMapStorage) ListFieldMaps(ctx context.Context, opts *interfaces.ListOptions) ([]*models.FieldMap, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	var maps []models.FieldMap
	if err := s.db.Store().Find(&maps, query); err != nil {
		return nil, fmt.Errorf("failed to list field maps: %w", err)
	}

	result := make([]*models.FieldMap, len(maps))
	for i := range maps {
		result[i] = &maps[i]
	}
	return result, nil
}

func (s *FieldMapStorage) DeleteFieldMap(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.FieldMap{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("field map %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete field map: %w", err)
	}
	return nil
}
