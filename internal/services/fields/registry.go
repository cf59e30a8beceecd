package fields

import (
	"fmt"
	"time"

	"github.com/ternarybob/tendril/internal/models"
)

// parser turns trimmed raw text into a typed outcome
type parser func(raw string, def models.FieldDef, ctx ParseContext, now time.Time) Outcome

// simple adapts parsers that ignore the field definition and clock
func simple(fn func(string, ParseContext) Outcome) parser {
	return func(raw string, _ models.FieldDef, ctx ParseContext, _ time.Time) Outcome {
		return fn(raw, ctx)
	}
}

// registry maps field types to their parsers
var registry = map[models.FieldType]parser{
	models.FieldTypeString:     simple(parseString),
	models.FieldTypeText:       simple(parseText),
	models.FieldTypeHTML:       simple(parseHTML),
	models.FieldTypeCategory:   simple(parseCategory),
	models.FieldTypeBoolean:    simple(parseBoolean),
	models.FieldTypeEmail:      simple(parseEmail),
	models.FieldTypeMoney:      simple(parseMoney),
	models.FieldTypeURL:        simple(parseURL),
	models.FieldTypeImageURL:   simple(parseURL),
	models.FieldTypeTime:       simple(parseTime),
	models.FieldTypeNumber:     simple(parseNumber),
	models.FieldTypeInteger:    simple(parseInteger),
	models.FieldTypeDecimal:    simple(parseDecimal),
	models.FieldTypePercentage: simple(parsePercentage),
	models.FieldTypeRating:     simple(parseRating),
	models.FieldTypePersonName: simple(parsePersonName),
	models.FieldTypeFirstName:  simple(parseFirstName),
	models.FieldTypeLastName:   simple(parseLastName),
	models.FieldTypeAddress:    simple(parseAddress),
	models.FieldTypeCity:       simple(parseCity),
	models.FieldTypeState:      simple(parseState),
	models.FieldTypeZipCode:    simple(parseZip),
	models.FieldTypeCountry:    simple(parseCountry),
	models.FieldTypeCompany:    simple(parseCompany),
	models.FieldTypeJobTitle:   simple(parseJobTitle),

	// Fax and mobile are phone numbers with a different label
	models.FieldTypePhone:  phoneParser,
	models.FieldTypeFax:    phoneParser,
	models.FieldTypeMobile: phoneParser,

	models.FieldTypeDate: func(raw string, def models.FieldDef, _ ParseContext, now time.Time) Outcome {
		return parseDateWithDef(raw, def, now)
	},
	models.FieldTypeDatetime: func(raw string, def models.FieldDef, _ ParseContext, now time.Time) Outcome {
		return parseDatetimeWithDef(raw, def, now)
	},
}

// phoneParser resolves the parse region from the field definition, then
// the processor defaults
func phoneParser(raw string, def models.FieldDef, ctx ParseContext, _ time.Time) Outcome {
	region := def.Region
	if region == "" {
		region = ctx.Region
	}
	return parsePhoneWithRegion(raw, region)
}

// Parse dispatches a raw value to the parser for the field's type.
// Unknown types fall back to plain string handling.
func Parse(def models.FieldDef, raw string, ctx ParseContext, now time.Time) Outcome {
	p, ok := registry[def.Type]
	if !ok {
		outcome := parseString(raw, ctx)
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("unknown_field_type_%s", def.Type))
		return outcome
	}
	return p(raw, def, ctx, now)
}
