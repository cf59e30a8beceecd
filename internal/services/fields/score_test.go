package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreNilValue(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil, "raw", []string{"invalid_email_format"}, nil))
	assert.Equal(t, 1.0, Score(nil, "", nil, nil))
}

func TestScoreErrorsSubtract(t *testing.T) {
	assert.Equal(t, 1.0, Score("value", "value", nil, nil))
	assert.Equal(t, 0.8, Score("value", "value", []string{"one"}, nil))
	assert.Equal(t, 0.6, Score("value", "value", []string{"one", "two"}, nil))
}

func TestScoreIndicatorBonus(t *testing.T) {
	// Bonus only applies up to the cap
	assert.Equal(t, 1.0, Score("value", "value", nil, []string{IndicatorParsed, IndicatorFormat}))

	// With an error the bonus claws back some confidence
	got := Score("value", "value", []string{"one"}, []string{IndicatorParsed, IndicatorNormalized})
	assert.Equal(t, 0.9, got)

	// Unrecognized indicators earn nothing
	got = Score("value", "value", []string{"one"}, []string{"made_up_indicator"})
	assert.Equal(t, 0.8, got)
}

func TestScoreShrinkagePenalty(t *testing.T) {
	// Parsed value shrank to under half the raw length
	got := Score("ab", "abcdefghij", nil, nil)
	assert.Equal(t, 0.9, got)

	// Non-string values never take the penalty
	got = Score(42.0, "42 units of text around it", nil, nil)
	assert.Equal(t, 1.0, got)
}

func TestScoreClampAndRounding(t *testing.T) {
	errs := []string{"a", "b", "c", "d", "e", "f"}
	assert.Equal(t, 0.0, Score("value", "value", errs, nil))

	got := Score("value", "value", []string{"one"}, []string{IndicatorParsed})
	assert.Equal(t, 0.85, got)
}

func TestConsensusBoost(t *testing.T) {
	boosted, reason := ConsensusBoost(0.7, 2)
	assert.Equal(t, 0.9, boosted)
	assert.Equal(t, "consensus_2_sources", reason)

	boosted, reason = ConsensusBoost(0.7, 3)
	assert.Equal(t, 1.0, boosted)
	assert.Equal(t, "consensus_3_sources", reason)

	// Capped at 1
	boosted, _ = ConsensusBoost(0.95, 3)
	assert.Equal(t, 1.0, boosted)

	// One source is no consensus
	boosted, reason = ConsensusBoost(0.7, 1)
	assert.Equal(t, 0.7, boosted)
	assert.Equal(t, "", reason)
}
