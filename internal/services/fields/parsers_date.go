package fields

import (
	"strings"
	"time"

	"github.com/ternarybob/tendril/internal/models"
)

// dateLayouts are tried in order; first parse wins
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2 2006",
	"20060102",
}

const (
	minDateYear = 1970
	maxDateYear = 2100
)

// parseDate normalizes date text to ISO-8601 (date-only output when the
// input carried no time component). Years outside 1970-2100 are rejected
// as scrape noise rather than data.
func parseDateWithDef(raw string, def models.FieldDef, now time.Time) Outcome {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fail("invalid_date")
	}

	var parsed time.Time
	var matched string
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			parsed = t
			matched = layout
			break
		}
	}
	if matched == "" {
		return fail("invalid_date")
	}

	year := parsed.Year()
	if year < minDateYear || year > maxDateYear {
		return fail("date_out_of_range")
	}

	if def.FutureOnly && parsed.Before(now) {
		return fail("date_not_in_future")
	}
	if def.PastOnly && parsed.After(now) {
		return fail("date_not_in_past")
	}

	value := parsed.Format("2006-01-02")
	if hasTimeComponent(matched) {
		value = parsed.Format(time.RFC3339)
	}

	return Outcome{
		Value:      value,
		Indicators: []string{IndicatorParsed, IndicatorNormalized},
	}
}

func hasTimeComponent(layout string) bool {
	return strings.Contains(layout, "15:04")
}

// parseDatetimeWithDef is the date parser with the output pinned to full
// RFC 3339: a date-only input gets a midnight time component
func parseDatetimeWithDef(raw string, def models.FieldDef, now time.Time) Outcome {
	outcome := parseDateWithDef(raw, def, now)
	if len(outcome.Errors) > 0 {
		return outcome
	}
	value, _ := outcome.Value.(string)
	if !strings.Contains(value, "T") {
		if t, err := time.Parse("2006-01-02", value); err == nil {
			outcome.Value = t.Format(time.RFC3339)
		}
	}
	return outcome
}

// timeLayouts are tried in order for time-of-day values
var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// parseTime normalizes a time of day to 24-hour HH:MM
func parseTime(raw string, _ ParseContext) Outcome {
	text := strings.ToUpper(collapseWhitespace(raw))
	if text == "" {
		return fail("invalid_time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return Outcome{
				Value:      t.Format("15:04"),
				Indicators: []string{IndicatorParsed, IndicatorNormalized},
			}
		}
	}
	return fail("invalid_time")
}
