// Package apperr defines the error kinds surfaced by the extraction and sync
// pipeline. Callers classify errors with KindOf rather than string matching.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation and HTTP status mapping.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindExtractionFailed Kind = "extraction_failed"
	KindExternalAPI      Kind = "external_api"
	KindNotFound         Kind = "not_found"
	KindConfiguration    Kind = "configuration"
	KindInternal         Kind = "internal"
)

// FieldError describes a single constraint violation at a JSON path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Path + ": " + f.Message
}

// Error is a classified error. Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.String()
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a validation error listing the offending fields.
func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// ExtractionFailed wraps a completion or payload failure.
func ExtractionFailed(err error) *Error {
	return &Error{Kind: KindExtractionFailed, Message: "failed to extract CRM data", Err: err}
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %v", entity, id)}
}

// Configuration reports a missing or invalid setting.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// External classifies a failed call to an external system. The message is
// the cause's own, unchanged.
func External(err error) *Error {
	return &Error{Kind: KindExternalAPI, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldsOf returns the field-level detail of the first *Error in err's chain
// that carries any, so validation detail survives an ExtractionFailed wrap.
func FieldsOf(err error) []FieldError {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return nil
		}
		if len(e.Fields) > 0 {
			return e.Fields
		}
		err = e.Err
	}
	return nil
}
