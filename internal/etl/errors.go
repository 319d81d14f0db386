package etl

import (
	"errors"
	"fmt"
)

// Schema error kinds. Loading aborts the run before any line is read.
var (
	ErrMalformed          = errors.New("malformed schema")
	ErrInvalidField       = errors.New("invalid field")
	ErrInvalidDestination = errors.New("invalid destination")
	ErrEmptyFields        = errors.New("schema has no fields")
)

// Decode error kinds. They are per field and never abort a line.
var (
	ErrMissingField = errors.New("missing field")
	ErrTypeMismatch = errors.New("type mismatch")
)

// Sink error kinds. They are per sink per record and never abort a run.
var (
	ErrSinkConnection    = errors.New("sink connection failure")
	ErrSinkSerialization = errors.New("sink serialization failure")
	ErrSinkRejected      = errors.New("sink rejected record")
)

// SchemaError reports why a schema source could not be turned into a Schema.
type SchemaError struct {
	Kind   error  // one of ErrMalformed, ErrInvalidField, ErrInvalidDestination, ErrEmptyFields
	Source string // path or label of the schema source
	Field  string // offending field name, when known
	Detail string
	Err    error // underlying parse/read error, if any
}

func (e *SchemaError) Error() string {
	msg := e.Kind.Error()
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" %q", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *SchemaError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FieldError is a decode failure localized to a single field of a line.
type FieldError struct {
	Kind  error // ErrMissingField or ErrTypeMismatch
	Line  int
	Field string
	Raw   string
	Err   error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("line %d: field %q: %s", e.Line, e.Field, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() error { return e.Kind }

// SinkError is a delivery failure for one record on one sink.
type SinkError struct {
	Kind error // ErrSinkConnection, ErrSinkSerialization or ErrSinkRejected
	Sink SinkKind
	Line int
	Err  error
}

func (e *SinkError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Sink, e.Kind)
	case errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Sink, e.Err)
	default:
		return fmt.Sprintf("line %d: %s: %s: %v", e.Line, e.Sink, e.Kind, e.Err)
	}
}

func (e *SinkError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FatalIOError reports that the data source could not be opened or read.
type FatalIOError struct {
	Source string
	Line   int // last line read successfully, 0 if none
	Err    error
}

func (e *FatalIOError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("read %s after line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("read %s: %v", e.Source, e.Err)
}

func (e *FatalIOError) Unwrap() error { return e.Err }

func schemaErr(kind error, field, format string, args ...any) *SchemaError {
	return &SchemaError{Kind: kind, Field: field, Detail: fmt.Sprintf(format, args...)}
}
