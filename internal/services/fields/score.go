package fields

import (
	"fmt"
	"math"
)

// knownIndicators is the closed set of indicators that earn a bonus
var knownIndicators = map[string]bool{
	IndicatorParsed:     true,
	IndicatorFormat:     true,
	IndicatorNumber:     true,
	IndicatorNormalized: true,
}

// Score computes the confidence for a parsed field value.
//
// A nil value scores 0 when errors are present and 1 when the emptiness
// was legitimate. Otherwise start from 1.0, subtract 0.2 per error, add
// 0.05 per recognized success indicator, and penalize 0.1 when parsing
// shed more than half the raw text. The result is clamped to [0,1] and
// rounded to two decimals.
func Score(value any, raw string, errors []string, indicators []string) float64 {
	if value == nil {
		if len(errors) > 0 {
			return 0
		}
		return 1
	}

	confidence := 1.0 - 0.2*float64(len(errors))

	bonus := 0.0
	for _, indicator := range indicators {
		if knownIndicators[indicator] {
			bonus += 0.05
		}
	}
	confidence += bonus

	if s, ok := value.(string); ok && len(raw) > 0 {
		if float64(len(s)) < float64(len(raw))*0.5 {
			confidence -= 0.1
		}
	}

	confidence = math.Max(0, math.Min(1, confidence))
	return round2(confidence)
}

// ConsensusBoost lifts confidence when independent sources agree.
// Two sources add 0.2, three or more add 0.3; the reason records the
// agreement count. Confidence stays capped at 1.
func ConsensusBoost(confidence float64, sources int) (float64, string) {
	var boost float64
	switch {
	case sources >= 3:
		boost = 0.3
	case sources == 2:
		boost = 0.2
	default:
		return confidence, ""
	}

	boosted := math.Min(1, confidence+boost)
	return round2(boosted), fmt.Sprintf("consensus_%d_sources", sources)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
