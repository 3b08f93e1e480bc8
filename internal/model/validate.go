package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/crm-extract/internal/apperr"
)

const (
	MinConfidence = 0
	MaxConfidence = 100
)

// ParseRecord decodes serialized record text and validates it.
func ParseRecord(text string) (ExtractedRecord, error) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return ExtractedRecord{}, apperr.Validation("extracted data is not valid JSON",
			apperr.FieldError{Path: "$", Message: err.Error()})
	}
	return Validate(raw)
}

// DecodeLenient decodes completion output, treating anything that is not
// parseable JSON as an empty object. The result is then validated.
func DecodeLenient(text string) (ExtractedRecord, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&raw); err != nil || raw == nil {
		raw = map[string]any{}
	}
	return Validate(raw)
}

// Validate checks a decoded JSON value against the extracted record shape.
// Null and absent optional fields are equivalent; empty strings are treated
// as absent. Confidence defaults to 0 and must lie in [0,100]. Values of the
// wrong type are rejected, never coerced.
func Validate(raw any) (ExtractedRecord, error) {
	var v validator

	root, ok := raw.(map[string]any)
	if !ok {
		return ExtractedRecord{}, apperr.Validation("invalid extracted data",
			apperr.FieldError{Path: "$", Message: "expected object, got " + typeName(raw)})
	}

	var rec ExtractedRecord

	contact := v.object(root, "contact")
	rec.Contact = ContactData{
		Name:       v.str(contact, "contact", "name"),
		Email:      v.str(contact, "contact", "email"),
		Title:      v.str(contact, "contact", "title"),
		Phone:      v.str(contact, "contact", "phone"),
		Confidence: v.confidence(contact, "contact"),
	}

	company := v.object(root, "company")
	rec.Company = CompanyData{
		Name:       v.str(company, "company", "name"),
		Industry:   v.str(company, "company", "industry"),
		Size:       v.str(company, "company", "size"),
		Website:    v.str(company, "company", "website"),
		Confidence: v.confidence(company, "company"),
	}

	deal := v.object(root, "deal")
	rec.Deal = DealData{
		Name:       v.str(deal, "deal", "name"),
		Value:      v.num(deal, "deal", "value"),
		CloseDate:  v.str(deal, "deal", "closeDate"),
		Stage:      v.str(deal, "deal", "stage"),
		Confidence: v.confidence(deal, "deal"),
	}

	if len(v.errs) > 0 {
		return ExtractedRecord{}, apperr.Validation("invalid extracted data", v.errs...)
	}
	return rec, nil
}

type validator struct {
	errs []apperr.FieldError
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, apperr.FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// object returns the nested entity object. A missing or null entity reads as
// an empty object so that every confidence still defaults.
func (v *validator) object(root map[string]any, key string) map[string]any {
	val, ok := root[key]
	if !ok || val == nil {
		return map[string]any{}
	}
	obj, ok := val.(map[string]any)
	if !ok {
		v.fail(key, "expected object, got %s", typeName(val))
		return map[string]any{}
	}
	return obj
}

func (v *validator) str(obj map[string]any, entity, key string) *string {
	val, ok := obj[key]
	if !ok || val == nil {
		return nil
	}
	s, ok := val.(string)
	if !ok {
		v.fail(entity+"."+key, "expected string, got %s", typeName(val))
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func (v *validator) num(obj map[string]any, entity, key string) *float64 {
	val, ok := obj[key]
	if !ok || val == nil {
		return nil
	}
	n, ok := toNumber(val)
	if !ok {
		v.fail(entity+"."+key, "expected number, got %s", typeName(val))
		return nil
	}
	return &n
}

func (v *validator) confidence(obj map[string]any, entity string) int {
	val, ok := obj["confidence"]
	if !ok || val == nil {
		return MinConfidence
	}
	n, ok := toNumber(val)
	if !ok {
		v.fail(entity+".confidence", "expected number, got %s", typeName(val))
		return MinConfidence
	}
	if n < MinConfidence || n > MaxConfidence {
		v.fail(entity+".confidence", "must be between %d and %d, got %v", MinConfidence, MaxConfidence, n)
		return MinConfidence
	}
	return int(math.Round(n))
}

func toNumber(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func typeName(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", val)
	}
}
