package verdict

import (
	"errors"
	"fmt"
)

// Kind classifies why a model answer was rejected
type Kind int

const (
	KindSchemaMismatch Kind = iota + 1
	KindUnknownVerdict
	KindMissingField
	KindUntracedReference
)

func (k Kind) String() string {
	switch k {
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindUnknownVerdict:
		return "unknown_verdict"
	case KindMissingField:
		return "missing_field"
	case KindUntracedReference:
		return "untraced_reference"
	default:
		return "unknown"
	}
}

var (
	ErrSchemaMismatch    = errors.New("answer does not match schema")
	ErrUnknownVerdict    = errors.New("unknown verdict")
	ErrMissingField      = errors.New("missing required field")
	ErrUntracedReference = errors.New("reference not found in search results")
)

// ParseError is returned when model output cannot become an Answer
type ParseError struct {
	Kind   Kind
	Field  string
	Detail string
}

func (e *ParseError) Error() string {
	msg := e.Kind.String()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches the package sentinels
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrSchemaMismatch:
		return e.Kind == KindSchemaMismatch
	case ErrUnknownVerdict:
		return e.Kind == KindUnknownVerdict
	case ErrMissingField:
		return e.Kind == KindMissingField
	case ErrUntracedReference:
		return e.Kind == KindUntracedReference
	}
	return false
}

func mismatch(field, format string, args ...any) *ParseError {
	return &ParseError{Kind: KindSchemaMismatch, Field: field, Detail: fmt.Sprintf(format, args...)}
}

func missing(field string) *ParseError {
	return &ParseError{Kind: KindMissingField, Field: field, Detail: "required"}
}
