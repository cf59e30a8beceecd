package escalation

import (
	"fmt"

	"github.com/ternarybob/tendril/internal/models"
)

// Action is the ladder's verdict for one engine attempt
type Action string

const (
	ActionProceed  Action = "proceed"
	ActionEscalate Action = "escalate"
	ActionFail     Action = "fail"
)

// Decision is the outcome of consulting the ladder after an attempt
type Decision struct {
	Action     Action
	NextEngine models.Engine
	Reason     string
}

// String renders the decision the way it is recorded on the run
func (d Decision) String() string {
	switch d.Action {
	case ActionEscalate:
		return fmt.Sprintf("escalate:%s", d.Reason)
	case ActionFail:
		return fmt.Sprintf("fail:%s", d.Reason)
	default:
		return string(ActionProceed)
	}
}

// Ladder applies the http < browser < provider escalation policy
type Ladder struct {
	maxEscalations int
}

// NewLadder creates a ladder with the configured escalation bound
func NewLadder(maxEscalations int) *Ladder {
	if maxEscalations <= 0 {
		maxEscalations = 3
	}
	return &Ladder{maxEscalations: maxEscalations}
}

// MaxEscalations returns the per-run escalation bound
func (l *Ladder) MaxEscalations() int {
	return l.maxEscalations
}

// Decide turns a signal on an engine attempt into the next step.
// A forced engine mode never escalates: the signal becomes a failure.
// An empty signal means the attempt needs no escalation.
func (l *Ladder) Decide(engine models.Engine, mode models.EngineMode, signal string, escalationsUsed int) Decision {
	if signal == "" {
		return Decision{Action: ActionProceed}
	}

	if mode.IsForced() {
		return Decision{Action: ActionFail, Reason: signal}
	}

	if escalationsUsed >= l.maxEscalations {
		return Decision{Action: ActionFail, Reason: string(models.FailureMaxEscalations)}
	}

	next := models.NextTier(engine)
	if next == "" {
		// Top of the ladder with an unresolved signal
		return Decision{Action: ActionFail, Reason: signal}
	}

	return Decision{Action: ActionEscalate, NextEngine: next, Reason: signal}
}
