package models

import "time"

// FieldType identifies which typed parser handles a field's raw value
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeText       FieldType = "text"
	FieldTypeHTML       FieldType = "html"
	FieldTypeCategory   FieldType = "category"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeEmail      FieldType = "email"
	FieldTypePhone      FieldType = "phone"
	FieldTypeFax        FieldType = "fax"
	FieldTypeMobile     FieldType = "mobile"
	FieldTypeMoney      FieldType = "money"
	FieldTypeURL        FieldType = "url"
	FieldTypeImageURL   FieldType = "image_url"
	FieldTypeNumber     FieldType = "number"
	FieldTypeInteger    FieldType = "integer"
	FieldTypeDecimal    FieldType = "decimal"
	FieldTypePercentage FieldType = "percentage"
	FieldTypeRating     FieldType = "rating"
	FieldTypeDate       FieldType = "date"
	FieldTypeDatetime   FieldType = "datetime"
	FieldTypeTime       FieldType = "time"
	FieldTypePersonName FieldType = "person_name"
	FieldTypeFirstName  FieldType = "first_name"
	FieldTypeLastName   FieldType = "last_name"
	FieldTypeAddress    FieldType = "address"
	FieldTypeCity       FieldType = "city"
	FieldTypeState      FieldType = "state"
	FieldTypeZipCode    FieldType = "zip_code"
	FieldTypeCountry    FieldType = "country"
	FieldTypeCompany    FieldType = "company"
	FieldTypeJobTitle   FieldType = "job_title"
)

// FieldDef declares one typed field inside a field map
type FieldDef struct {
	Name           string       `json:"name" validate:"required"`
	Type           FieldType    `json:"type" validate:"required"`
	Required       bool         `json:"required"`
	Selector       SelectorSpec `json:"selector"`
	Min            *float64     `json:"min,omitempty"`
	Max            *float64     `json:"max,omitempty"`
	MinLen         *int         `json:"min_len,omitempty"`
	MaxLen         *int         `json:"max_len,omitempty"`
	AllowedValues  []string     `json:"allowed_values,omitempty"`
	AllowedDomains []string     `json:"allowed_domains,omitempty"` // Host allowlist for email and url fields
	Pattern        string       `json:"pattern,omitempty"`         // Validation regex applied to the parsed string
	Region         string       `json:"region,omitempty"`          // Phone parsing region override
	Scheme         string       `json:"scheme,omitempty"`          // URL default scheme override
	FutureOnly     bool         `json:"future_only,omitempty"`
	PastOnly       bool         `json:"past_only,omitempty"`
}

// SelectorRevision is one entry in a field map's selector history.
// The current selector set is always the last revision, so the
// revision count equals the map's version.
type SelectorRevision struct {
	Version   int                     `json:"version"`
	Selectors map[string]SelectorSpec `json:"selectors"`
	Note      string                  `json:"note,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// FieldMap is a named, reusable set of typed field definitions.
// Version only ever increases; every bump appends to History.
type FieldMap struct {
	ID        string             `json:"id" badgerhold:"key"`
	Name      string             `json:"name" validate:"required"`
	Fields    []FieldDef         `json:"fields" validate:"required,dive"`
	Version   int                `json:"version"`
	History   []SelectorRevision `json:"history,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// CurrentSelectors returns the field selectors keyed by field name
func (m *FieldMap) CurrentSelectors() map[string]SelectorSpec {
	out := make(map[string]SelectorSpec, len(m.Fields))
	for _, f := range m.Fields {
		if f.Selector.CSS != "" {
			out[f.Name] = f.Selector
		}
	}
	return out
}

// EnsureVersioned initializes Version and History on a map that has
// never been versioned, so len(History) == Version holds from the
// first save onward.
func (m *FieldMap) EnsureVersioned() {
	if m.Version > 0 {
		return
	}
	m.Version = 1
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	m.History = []SelectorRevision{{
		Version:   1,
		Selectors: m.CurrentSelectors(),
		Note:      "initial",
		CreatedAt: created,
	}}
}

// BumpVersion records a selector change: the version increments and
// the current selector set is appended as a new revision
func (m *FieldMap) BumpVersion(note string) {
	m.EnsureVersioned()
	m.Version++
	m.History = append(m.History, SelectorRevision{
		Version:   m.Version,
		Selectors: m.CurrentSelectors(),
		Note:      note,
		CreatedAt: time.Now(),
	})
	m.UpdatedAt = time.Now()
}

// RequiredFields returns the definitions flagged required
func (m *FieldMap) RequiredFields() []FieldDef {
	var out []FieldDef
	for _, f := range m.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}
