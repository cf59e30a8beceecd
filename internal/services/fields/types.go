package fields

// Success indicator names parsers may emit. Only these contribute to the
// confidence bonus; anything else a parser reports is informational.
const (
	IndicatorParsed     = "parsed_successfully"
	IndicatorFormat     = "valid_format"
	IndicatorNumber     = "valid_number"
	IndicatorNormalized = "normalized_successfully"
)

// Error and reason names shared across the pipeline
const (
	ErrRequiredMissing      = "required_field_missing"
	ReasonOptionalEmpty     = "optional_field_not_provided"
	ReasonPromotedConsensus = "promoted_from_consensus"
)

// ParseContext carries pipeline-level defaults into parsers
type ParseContext struct {
	Region string // Phone region fallback, e.g. "US"
	Scheme string // URL scheme fallback, e.g. "https"
}

// Outcome is what a typed parser produces from a trimmed raw value
type Outcome struct {
	Value      any
	Errors     []string
	Indicators []string
	Reasons    []string
}

// fail returns an outcome carrying only an error
func fail(err string) Outcome {
	return Outcome{Errors: []string{err}}
}

// MoneyValue is the structured output of the money parser
type MoneyValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// AddressValue is the structured output of the address parser
type AddressValue struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Postal     string `json:"postal,omitempty"`
	Country    string `json:"country,omitempty"`
}
