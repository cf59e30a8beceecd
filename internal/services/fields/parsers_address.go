package fields

import (
	"regexp"
	"strings"
)

// usStates maps both abbreviations and full names to the abbreviation
var usStates = map[string]string{
	"AL": "AL", "AK": "AK", "AZ": "AZ", "AR": "AR", "CA": "CA", "CO": "CO",
	"CT": "CT", "DE": "DE", "FL": "FL", "GA": "GA", "HI": "HI", "ID": "ID",
	"IL": "IL", "IN": "IN", "IA": "IA", "KS": "KS", "KY": "KY", "LA": "LA",
	"ME": "ME", "MD": "MD", "MA": "MA", "MI": "MI", "MN": "MN", "MS": "MS",
	"MO": "MO", "MT": "MT", "NE": "NE", "NV": "NV", "NH": "NH", "NJ": "NJ",
	"NM": "NM", "NY": "NY", "NC": "NC", "ND": "ND", "OH": "OH", "OK": "OK",
	"OR": "OR", "PA": "PA", "RI": "RI", "SC": "SC", "SD": "SD", "TN": "TN",
	"TX": "TX", "UT": "UT", "VT": "VT", "VA": "VA", "WA": "WA", "WV": "WV",
	"WI": "WI", "WY": "WY", "DC": "DC",
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS",
	"KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS",
	"MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK",
	"OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC",
	"SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV",
	"WISCONSIN": "WI", "WYOMING": "WY",
}

var zipPattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
var statePattern = regexp.MustCompile(`\b([A-Z]{2})\b`)
var strictZipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// parseAddress structures free-form address text. City/region/postal are
// extracted where US conventions apply; otherwise only the normalized
// form is populated.
func parseAddress(raw string, _ ParseContext) Outcome {
	normalized := collapseWhitespace(raw)
	if normalized == "" {
		return fail("empty_address")
	}

	value := AddressValue{
		Raw:        strings.TrimSpace(raw),
		Normalized: normalized,
	}
	indicators := []string{IndicatorParsed}

	if zip := zipPattern.FindString(normalized); zip != "" {
		value.Postal = zip
		value.Country = "US"
	}

	// Prefer a state abbreviation adjacent to the ZIP, else any match
	upper := strings.ToUpper(normalized)
	for _, match := range statePattern.FindAllString(upper, -1) {
		if abbrev, ok := usStates[match]; ok {
			value.Region = abbrev
			value.Country = "US"
			break
		}
	}

	// Comma-separated addresses put the city before the state segment
	parts := strings.Split(normalized, ",")
	if len(parts) >= 2 && value.Region != "" {
		for i := len(parts) - 1; i >= 1; i-- {
			segment := strings.ToUpper(strings.TrimSpace(parts[i]))
			if strings.Contains(segment, value.Region) {
				value.City = collapseWhitespace(parts[i-1])
				break
			}
		}
	}

	if value.Region != "" && value.Postal != "" {
		indicators = append(indicators, IndicatorFormat)
	}

	return Outcome{Value: value, Indicators: indicators}
}

// parseCity collapses whitespace on a city name
func parseCity(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if len(value) < 2 {
		return fail("invalid_city")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}

// parseState normalizes US states to their abbreviation; unknown regions
// pass through collapsed
func parseState(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if value == "" {
		return fail("invalid_state")
	}
	if abbrev, ok := usStates[strings.ToUpper(value)]; ok {
		return Outcome{Value: abbrev, Indicators: []string{IndicatorFormat, IndicatorNormalized}}
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}

// parseZip validates 5-digit and ZIP+4 codes
func parseZip(raw string, _ ParseContext) Outcome {
	value := strings.TrimSpace(raw)
	if !strictZipPattern.MatchString(value) {
		return fail("invalid_zip")
	}
	return Outcome{Value: value, Indicators: []string{IndicatorFormat}}
}

// countryAliases maps common names and codes to ISO 3166-1 alpha-2
var countryAliases = map[string]string{
	"US": "US", "USA": "US", "UNITED STATES": "US", "UNITED STATES OF AMERICA": "US",
	"GB": "GB", "UK": "GB", "UNITED KINGDOM": "GB", "GREAT BRITAIN": "GB",
	"CA": "CA", "CANADA": "CA",
	"AU": "AU", "AUSTRALIA": "AU",
	"NZ": "NZ", "NEW ZEALAND": "NZ",
	"DE": "DE", "GERMANY": "DE",
	"FR": "FR", "FRANCE": "FR",
	"ES": "ES", "SPAIN": "ES",
	"IT": "IT", "ITALY": "IT",
	"NL": "NL", "NETHERLANDS": "NL",
	"IE": "IE", "IRELAND": "IE",
	"IN": "IN", "INDIA": "IN",
	"JP": "JP", "JAPAN": "JP",
	"CN": "CN", "CHINA": "CN",
	"BR": "BR", "BRAZIL": "BR",
	"MX": "MX", "MEXICO": "MX",
}

var countryCodePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)

// parseCountry normalizes known country names to their alpha-2 code.
// Bare two-letter codes pass through uppercased; anything else passes
// through collapsed so unrecognized countries are kept, not lost.
func parseCountry(raw string, _ ParseContext) Outcome {
	value := collapseWhitespace(raw)
	if value == "" {
		return fail("invalid_country")
	}
	if code, ok := countryAliases[strings.ToUpper(value)]; ok {
		return Outcome{Value: code, Indicators: []string{IndicatorFormat, IndicatorNormalized}}
	}
	if countryCodePattern.MatchString(value) {
		return Outcome{Value: strings.ToUpper(value), Indicators: []string{IndicatorFormat}}
	}
	return Outcome{Value: value, Indicators: []string{IndicatorParsed}}
}
