package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tendril/internal/models"
)

func newTestProcessor() *Processor {
	return NewProcessor(ParseContext{Region: "US", Scheme: "https"}, nil)
}

func TestProcessFieldRequiredMissing(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "title", Type: models.FieldTypeString, Required: true}

	result := p.ProcessField(def, "   ", nil)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Contains(t, result.Errors, ErrRequiredMissing)
	assert.Nil(t, result.Value)
}

func TestProcessFieldOptionalEmpty(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "subtitle", Type: models.FieldTypeString}

	result := p.ProcessField(def, "", nil)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Contains(t, result.Reasons, ReasonOptionalEmpty)
	assert.Empty(t, result.Errors)
}

func TestProcessFieldCleanParse(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "contact", Type: models.FieldTypeEmail, Required: true}

	result := p.ProcessField(def, "Sales@Example.com", nil)
	assert.Equal(t, "sales@example.com", result.Value)
	assert.Equal(t, "css", result.Source)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestProcessFieldValidationLowersConfidence(t *testing.T) {
	p := newTestProcessor()
	min := 1.0
	max := 5.0
	def := models.FieldDef{Name: "stars", Type: models.FieldTypeRating, Min: &min, Max: &max}

	result := p.ProcessField(def, "7", nil)
	assert.Contains(t, result.Errors, "above_maximum")
	assert.Less(t, result.Confidence, 1.0)
}

func TestProcessFieldConsensusAgreement(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "name", Type: models.FieldTypeString}

	alts := []SourceValue{
		{Source: "jsonld", Raw: "Acme   Widget"},
		{Source: "og", Raw: "Different Title"},
	}

	// Primary agrees with jsonld after whitespace normalization; the
	// returned value keeps the primary's original form.
	result := p.ProcessField(def, "Acme Widget", alts)
	assert.Equal(t, "Acme Widget", result.Value)
	assert.Equal(t, "css", result.Source)
	assert.Contains(t, result.Reasons, "consensus_2_sources")
	assert.Equal(t, 1.0, result.Confidence)
}

func TestProcessFieldConsensusPromotion(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "name", Type: models.FieldTypeString, Required: true}

	alts := []SourceValue{
		{Source: "jsonld", Raw: "Acme Widget"},
		{Source: "og", Raw: "acme widget"},
	}

	result := p.ProcessField(def, "", alts)
	assert.Equal(t, "Acme Widget", result.Value)
	assert.Equal(t, "consensus", result.Source)
	assert.Contains(t, result.Reasons, ReasonPromotedConsensus)
	assert.Contains(t, result.Reasons, "consensus_2_sources")
}

func TestProcessFieldLoneAlternateDoesNotWin(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "name", Type: models.FieldTypeString}

	alts := []SourceValue{
		{Source: "jsonld", Raw: "Something Else"},
	}

	result := p.ProcessField(def, "Primary Title", alts)
	assert.Equal(t, "Primary Title", result.Value)
	assert.Equal(t, "css", result.Source)
	assert.NotContains(t, result.Reasons, ReasonPromotedConsensus)
	for _, reason := range result.Reasons {
		assert.NotContains(t, reason, "consensus")
	}
}

func TestProcessFieldEmptyPrimaryNoQuorum(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "name", Type: models.FieldTypeString, Required: true}

	alts := []SourceValue{
		{Source: "jsonld", Raw: "Lone Value"},
	}

	// A single alternate cannot promote an empty required field
	result := p.ProcessField(def, "", alts)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Contains(t, result.Errors, ErrRequiredMissing)
}

func TestProcessFieldConsensusTieKeepsPrimary(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "name", Type: models.FieldTypeString}

	// Primary plus one alternate against two agreeing alternates: a
	// two-two tie. The primary's group must win on every run.
	alts := []SourceValue{
		{Source: "jsonld", Raw: "Primary Title"},
		{Source: "og", Raw: "Challenger Title"},
		{Source: "microdata", Raw: "Challenger Title"},
	}

	for i := 0; i < 50; i++ {
		result := p.ProcessField(def, "Primary Title", alts)
		require.Equal(t, "Primary Title", result.Value)
		require.Equal(t, "css", result.Source)
	}
}

func TestProcessFieldConsensusOutvotesPrimary(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "name", Type: models.FieldTypeString}

	// Two agreeing alternates beat a lone primary
	alts := []SourceValue{
		{Source: "jsonld", Raw: "Agreed Title"},
		{Source: "og", Raw: "agreed title"},
	}

	result := p.ProcessField(def, "Outlier Title", alts)
	assert.Equal(t, "Agreed Title", result.Value)
	assert.Equal(t, "consensus", result.Source)
	assert.Contains(t, result.Reasons, "consensus_2_sources")
}

func TestProcessFieldTypedConsensus(t *testing.T) {
	p := newTestProcessor()
	def := models.FieldDef{Name: "price", Type: models.FieldTypeMoney}

	alts := []SourceValue{
		{Source: "jsonld", Raw: "$19.99"},
	}

	result := p.ProcessField(def, "$19.99", alts)
	require.IsType(t, MoneyValue{}, result.Value)
	money := result.Value.(MoneyValue)
	assert.Equal(t, 19.99, money.Amount)
	assert.Equal(t, "USD", money.Currency)
	assert.Contains(t, result.Reasons, "consensus_2_sources")
}
