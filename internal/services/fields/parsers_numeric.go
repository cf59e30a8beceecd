package fields

import (
	"regexp"
	"strconv"
	"strings"
)

// currencySymbols maps leading symbols to ISO codes. Multi-char symbols
// are checked before the bare dollar sign.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"R$", "BRL"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₽", "RUB"},
}

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}\b`)
var numberPattern = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

// parseMoney extracts an amount and currency from price text
func parseMoney(raw string, _ ParseContext) Outcome {
	text := strings.TrimSpace(raw)
	currency := ""

	for _, cs := range currencySymbols {
		if idx := strings.Index(text, cs.symbol); idx >= 0 {
			currency = cs.code
			text = strings.Replace(text, cs.symbol, "", 1)
			break
		}
	}

	if currency == "" {
		upper := strings.ToUpper(strings.TrimSpace(text))
		if code := currencyCodePattern.FindString(upper); code != "" {
			currency = code
			text = strings.TrimSpace(text[len(code):])
		}
	}

	match := numberPattern.FindString(text)
	if match == "" {
		return fail("no_amount_found")
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return fail("invalid_amount")
	}

	return Outcome{
		Value:      MoneyValue{Amount: amount, Currency: currency},
		Indicators: []string{IndicatorParsed, IndicatorNumber},
	}
}

// parseNumber extracts the first numeric value from text
func parseNumber(raw string, _ ParseContext) Outcome {
	match := numberPattern.FindString(raw)
	if match == "" {
		return fail("not_a_number")
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return fail("not_a_number")
	}

	return Outcome{
		Value:      value,
		Indicators: []string{IndicatorNumber},
	}
}

// parseInteger extracts a whole number, rejecting fractional text
func parseInteger(raw string, ctx ParseContext) Outcome {
	outcome := parseNumber(raw, ctx)
	if len(outcome.Errors) > 0 {
		return fail("not_an_integer")
	}

	value := outcome.Value.(float64)
	if value != float64(int64(value)) {
		return fail("not_an_integer")
	}

	return Outcome{
		Value:      int64(value),
		Indicators: []string{IndicatorNumber},
	}
}

// parseDecimal is parseNumber with the decimal label for validation hooks
func parseDecimal(raw string, ctx ParseContext) Outcome {
	return parseNumber(raw, ctx)
}

// parsePercentage converts "12.5%" style text to a 0..1 fraction
func parsePercentage(raw string, ctx ParseContext) Outcome {
	outcome := parseNumber(raw, ctx)
	if len(outcome.Errors) > 0 {
		return fail("invalid_percentage")
	}

	value := outcome.Value.(float64) / 100
	return Outcome{
		Value:      value,
		Indicators: []string{IndicatorNumber, IndicatorNormalized},
	}
}

var ratingPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(?:/|of|out of)\s*(\d+(?:\.\d+)?)`)

// parseRating reads "4.5", "4.5/5" or "9 out of 10" style scores,
// normalizing scaled ratings to their own scale's value
func parseRating(raw string, ctx ParseContext) Outcome {
	if m := ratingPattern.FindStringSubmatch(raw); m != nil {
		score, err1 := strconv.ParseFloat(m[1], 64)
		scale, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && scale > 0 {
			if score < 0 || score > scale {
				return fail("rating_out_of_scale")
			}
			return Outcome{
				Value:      score,
				Indicators: []string{IndicatorNumber, IndicatorParsed},
			}
		}
	}

	outcome := parseNumber(raw, ctx)
	if len(outcome.Errors) > 0 {
		return fail("invalid_rating")
	}
	return outcome
}
