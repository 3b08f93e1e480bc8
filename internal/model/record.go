package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ContactData is the contact portion of an extracted record.
type ContactData struct {
	Name       *string `json:"name,omitempty" jsonschema:"description=Full name of the primary contact"`
	Email      *string `json:"email,omitempty" jsonschema:"description=Email address"`
	Title      *string `json:"title,omitempty" jsonschema:"description=Job title"`
	Phone      *string `json:"phone,omitempty" jsonschema:"description=Phone number"`
	Confidence int     `json:"confidence" jsonschema:"minimum=0,maximum=100"`
}

// CompanyData is the company portion of an extracted record.
type CompanyData struct {
	Name       *string `json:"name,omitempty" jsonschema:"description=Company name"`
	Industry   *string `json:"industry,omitempty" jsonschema:"description=Industry"`
	Size       *string `json:"size,omitempty" jsonschema:"description=Descriptive size such as 50 employees"`
	Website    *string `json:"website,omitempty" jsonschema:"description=Website URL or domain"`
	Confidence int     `json:"confidence" jsonschema:"minimum=0,maximum=100"`
}

// DealData is the deal portion of an extracted record.
type DealData struct {
	Name       *string  `json:"name,omitempty" jsonschema:"description=Deal name such as Company - Product/Service"`
	Value      *float64 `json:"value,omitempty" jsonschema:"description=Numeric amount without currency symbols"`
	CloseDate  *string  `json:"closeDate,omitempty" jsonschema:"description=Expected close date"`
	Stage      *string  `json:"stage,omitempty" jsonschema:"description=Sales pipeline stage"`
	Confidence int      `json:"confidence" jsonschema:"minimum=0,maximum=100"`
}

// ExtractedRecord is the validated contact/company/deal triple produced from
// a meeting summary. A nil field means the value was not mentioned.
type ExtractedRecord struct {
	Contact ContactData `json:"contact"`
	Company CompanyData `json:"company"`
	Deal    DealData    `json:"deal"`
}

// Marshal serializes the record for storage as opaque text.
func (r ExtractedRecord) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "model: marshal extracted record")
	}
	return string(b), nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
