package fields

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// parseString trims and collapses whitespace, nothing more
func parseString(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if value == "" {
		return fail("empty_string")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}

var mdConverter = md.NewConverter("", true, nil)
var markdownSyntax = regexp.MustCompile("[#*_`>\\[\\]()!-]")

// parseText renders HTML-bearing text down to readable plain text.
// Markup goes through the markdown converter first so structure
// (headings, list items) degrades into sensible line text.
func parseText(raw string, ctx ParseContext) Outcome {
	value := raw
	if strings.Contains(raw, "<") && strings.Contains(raw, ">") {
		converted, err := mdConverter.ConvertString(raw)
		if err == nil && strings.TrimSpace(converted) != "" {
			value = markdownSyntax.ReplaceAllString(converted, " ")
		}
	}

	value = collapseWhitespace(value)
	if value == "" {
		return fail("empty_text")
	}

	indicators := []string{IndicatorParsed}
	if value != collapseWhitespace(raw) {
		indicators = append(indicators, IndicatorNormalized)
	}
	return Outcome{Value: value, Indicators: indicators}
}

// parseHTML keeps markup as-is, trimmed
func parseHTML(raw string, _ ParseContext) Outcome {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fail("empty_html")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}

// parseCategory lowercases and collapses category labels
func parseCategory(raw string, _ ParseContext) Outcome {
	value := strings.ToLower(collapseWhitespace(raw))
	if value == "" {
		return fail("empty_category")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorNormalized}}
}

var truthyValues = map[string]bool{"true": true, "yes": true, "1": true, "on": true}
var falsyValues = map[string]bool{"false": true, "no": true, "0": true, "off": true}

// parseBoolean maps common truthy/falsy tokens to bool
func parseBoolean(raw string, _ ParseContext) Outcome {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case truthyValues[value]:
		return Outcome{Value: true, Indicators: []string{IndicatorParsed}}
	case falsyValues[value]:
		return Outcome{Value: false, Indicators: []string{IndicatorParsed}}
	default:
		return fail("invalid_boolean")
	}
}

// parsePersonName collapses whitespace and rejects degenerate names
func parsePersonName(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if len(value) < 2 {
		return fail("invalid_person_name")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}

// parseFirstName takes the leading token of a name
func parseFirstName(raw string, ctx ParseContext) Outcome {
	outcome := parsePersonName(raw, ctx)
	if len(outcome.Errors) > 0 {
		return outcome
	}
	parts := strings.Fields(outcome.Value.(string))
	if len(parts[0]) < 2 {
		return fail("invalid_person_name")
	}
	return Outcome{Value: parts[0], Indicators: []string{IndicatorParsed}}
}

// parseLastName takes the trailing token of a name
func parseLastName(raw string, ctx ParseContext) Outcome {
	outcome := parsePersonName(raw, ctx)
	if len(outcome.Errors) > 0 {
		return outcome
	}
	parts := strings.Fields(outcome.Value.(string))
	last := parts[len(parts)-1]
	if len(last) < 2 {
		return fail("invalid_person_name")
	}
	return Outcome{Value: last, Indicators: []string{IndicatorParsed}}
}

// companySuffixPattern trims trailing corporate noise for comparison
var companyNoise = regexp.MustCompile(`(?i)\s*(,\s*)?(inc\.?|llc\.?|ltd\.?|corp\.?|gmbh|pty\.?\s*ltd\.?)$`)

// parseCompany collapses whitespace; corporate suffixes are kept but a
// normalized form drives the indicator
func parseCompany(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if value == "" {
		return fail("empty_company")
	}
	indicators := []string{IndicatorParsed}
	if companyNoise.MatchString(value) {
		indicators = append(indicators, IndicatorFormat)
	}
	return Outcome{Value: value, Indicators: indicators}
}

// parseJobTitle collapses whitespace on title text
func parseJobTitle(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if value == "" {
		return fail("empty_job_title")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}
