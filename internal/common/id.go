package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewRecordID generates a unique record ID with the "rec_" prefix
func NewRecordID() string {
	return "rec_" + uuid.New().String()
}

// NewInterventionID generates a unique intervention task ID with the "int_" prefix
func NewInterventionID() string {
	return "int_" + uuid.New().String()
}
