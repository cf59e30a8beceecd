package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
)

// Manager owns the Badger connection and hands out entity stores
type Manager struct {
	db            *BadgerDB
	jobs          interfaces.JobStorage
	fieldMaps     interfaces.FieldMapStorage
	runs          interfaces.RunStorage
	records       interfaces.RecordStorage
	runEvents     interfaces.RunEventStorage
	domainStats   interfaces.DomainStatsStorage
	domainConfigs interfaces.DomainConfigStorage
	interventions interfaces.InterventionStorage
	rules         interfaces.RuleStorage
	logger        arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:            db,
		jobs:          NewJobStorage(db, logger),
		fieldMaps:     NewFieldMapStorage(db, logger),
		runs:          NewRunStorage(db, logger),
		records:       NewRecordStorage(db, logger),
		runEvents:     NewRunEventStorage(db, logger),
		domainStats:   NewDomainStatsStorage(db, logger),
		domainConfigs: NewDomainConfigStorage(db, logger),
		interventions: NewInterventionStorage(db, logger),
		rules:         NewRuleStorage(db, logger),
		logger:        logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the job store
func (m *Manager) JobStorage() interfaces.JobStorage { return m.jobs }

// FieldMapStorage returns the field map store
func (m *Manager) FieldMapStorage() interfaces.FieldMapStorage { return m.fieldMaps }

// RunStorage returns the run store
func (m *Manager) RunStorage() interfaces.RunStorage { return m.runs }

// RecordStorage returns the record store
func (m *Manager) RecordStorage() interfaces.RecordStorage { return m.records }

// RunEventStorage returns the run event store
func (m *Manager) RunEventStorage() interfaces.RunEventStorage { return m.runEvents }

// DomainStatsStorage returns the domain stats store
func (m *Manager) DomainStatsStorage() interfaces.DomainStatsStorage { return m.domainStats }

// DomainConfigStorage returns the domain config store
func (m *Manager) DomainConfigStorage() interfaces.DomainConfigStorage { return m.domainConfigs }

// InterventionStorage returns the intervention store
func (m *Manager) InterventionStorage() interfaces.InterventionStorage { return m.interventions }

// RuleStorage returns the rule store
func (m *Manager) RuleStorage() interfaces.RuleStorage { return m.rules }

// DB returns the underlying database for components that share the handle
func (m *Manager) DB() *BadgerDB { return m.db }

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
