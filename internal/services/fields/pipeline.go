package fields

import (
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/models"
)

// SourceValue is a raw value for a field from an alternate source
type SourceValue struct {
	Source string
	Raw    string
}

// Processor runs raw values through the typed field pipeline
type Processor struct {
	ctx    ParseContext
	logger arbor.ILogger
	now    func() time.Time
}

// NewProcessor creates a field processor with the given defaults
func NewProcessor(ctx ParseContext, logger arbor.ILogger) *Processor {
	return &Processor{
		ctx:    ctx,
		logger: logger,
		now:    time.Now,
	}
}

// ProcessField runs one raw value through the pipeline stages: empty
// handling, trim, typed parse, validation, consensus and scoring.
// Alternate source values participate in consensus; quorum is two
// agreeing sources. A consensus winner replaces the primary only with
// quorum, and an empty primary is promoted from consensus with a
// recorded reason.
func (p *Processor) ProcessField(def models.FieldDef, raw string, alts []SourceValue) models.FieldResult {
	result := models.FieldResult{
		Raw:    raw,
		Source: "css",
	}

	trimmed := strings.TrimSpace(raw)
	chosen, source, consensusN, promoted := resolveConsensus(trimmed, alts)

	if chosen == "" {
		if def.Required {
			result.Confidence = 0
			result.Errors = []string{ErrRequiredMissing}
		} else {
			result.Confidence = 1
			result.Reasons = []string{ReasonOptionalEmpty}
		}
		return result
	}

	outcome := Parse(def, chosen, p.ctx, p.now())
	Validate(def, &outcome)

	result.Value = outcome.Value
	result.Errors = outcome.Errors
	result.Reasons = outcome.Reasons
	result.Source = source
	result.Confidence = Score(outcome.Value, chosen, outcome.Errors, outcome.Indicators)

	if promoted {
		result.Reasons = append(result.Reasons, ReasonPromotedConsensus)
	}
	if consensusN >= 2 {
		boosted, reason := ConsensusBoost(result.Confidence, consensusN)
		result.Confidence = boosted
		if reason != "" {
			result.Reasons = append(result.Reasons, reason)
		}
	}

	return result
}

// resolveConsensus compares the primary value against alternate sources.
// Values agree when their normalized forms match; the returned value is
// always an original, un-normalized form. Ties are deterministic: the
// group containing the primary wins, then the earliest-seen group.
func resolveConsensus(primary string, alts []SourceValue) (value, source string, consensusN int, promoted bool) {
	type group struct {
		original   string
		source     string
		count      int
		hasPrimary bool
	}

	byKey := make(map[string]*group)
	var groups []*group
	add := func(raw, src string, isPrimary bool) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		key := normalizeForComparison(raw)
		if g, ok := byKey[key]; ok {
			g.count++
			g.hasPrimary = g.hasPrimary || isPrimary
			return
		}
		g := &group{original: raw, source: src, count: 1, hasPrimary: isPrimary}
		byKey[key] = g
		groups = append(groups, g)
	}

	add(primary, "css", true)
	for _, alt := range alts {
		add(alt.Raw, alt.Source, false)
	}

	var best *group
	for _, g := range groups {
		if best == nil || g.count > best.count {
			best = g
			continue
		}
		if g.count == best.count && g.hasPrimary && !best.hasPrimary {
			best = g
		}
	}

	if best != nil && best.count >= 2 {
		promoted = primary == ""
		src := best.source
		if src != "css" {
			src = "consensus"
		}
		return best.original, src, best.count, promoted
	}

	// No quorum: the primary stands, even against a lone alternate
	return primary, "css", 0, false
}

func normalizeForComparison(s string) string {
	return strings.ToLower(collapseWhitespace(s))
}
