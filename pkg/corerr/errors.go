// Package corerr defines the canonical error type used across finintel.
// Every recoverable condition returns a *corerr.Error; panics are reserved
// for programmer mistakes and unrecoverable I/O failures.
package corerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy the orchestrator and its
// collaborators use to decide recovery and surfacing policy.
type Kind string

const (
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindExtractionFailed    Kind = "extraction_failed"
	KindOntologyAmbiguous   Kind = "ontology_ambiguous"
	KindValidationFailed    Kind = "validation_failed"
	KindUnauthorized        Kind = "unauthorized"
	KindQueryTimedOut       Kind = "query_timed_out"
	KindIndexUnavailable    Kind = "index_unavailable"
	KindStoreConcurrency    Kind = "store_concurrency_error"
	KindQueueFull           Kind = "queue_full"
	KindOverloaded          Kind = "overloaded"
)

// policy holds the per-kind defaults mirrored from spec.md §7.
type policy struct {
	retryable  bool
	httpStatus int
}

var policies = map[Kind]policy{
	KindUnsupportedFormat: {retryable: false, httpStatus: 415},
	KindExtractionFailed:  {retryable: true, httpStatus: 422},
	KindOntologyAmbiguous: {retryable: false, httpStatus: 200},
	KindValidationFailed:  {retryable: false, httpStatus: 200},
	KindUnauthorized:      {retryable: false, httpStatus: 403},
	KindQueryTimedOut:     {retryable: false, httpStatus: 504},
	KindIndexUnavailable:  {retryable: true, httpStatus: 200},
	KindStoreConcurrency:  {retryable: true, httpStatus: 409},
	KindQueueFull:         {retryable: true, httpStatus: 503},
	KindOverloaded:        {retryable: true, httpStatus: 503},
}

// Error is the structured error value carried through the pipeline.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Context    map[string]any
	Retryable  bool
	HTTPStatus int
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Underlying }

// New creates an Error for the given kind, applying the kind's default
// retryable/HTTP-status policy.
func New(kind Kind, code, message string) *Error {
	p := policies[kind]
	return &Error{
		Kind:       kind,
		Code:       code,
		Message:    message,
		Retryable:  p.retryable,
		HTTPStatus: p.httpStatus,
	}
}

// WithContext attaches structured context fields, masking nothing itself —
// callers must pass already-redacted values (see internal/obslog for the
// PII-masking rules applied at the logging boundary).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithUnderlying(err error) *Error {
	e.Underlying = err
	return e
}

// Wrap annotates err as the given kind if it is not already a *corerr.Error;
// an existing *corerr.Error passes through unchanged so call sites deeper in
// the stack keep their original classification.
func Wrap(kind Kind, code, message string, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return New(kind, code, message).WithUnderlying(err)
}

func UnsupportedFormat(code, message string) *Error { return New(KindUnsupportedFormat, code, message) }
func ExtractionFailed(code, message string) *Error  { return New(KindExtractionFailed, code, message) }
func OntologyAmbiguous(code, message string) *Error { return New(KindOntologyAmbiguous, code, message) }
func ValidationFailed(code, message string) *Error  { return New(KindValidationFailed, code, message) }
func QueryTimedOut(code, message string) *Error     { return New(KindQueryTimedOut, code, message) }
func IndexUnavailable(code, message string) *Error  { return New(KindIndexUnavailable, code, message) }
func StoreConcurrency(code, message string) *Error  { return New(KindStoreConcurrency, code, message) }
func QueueFull(code, message string) *Error         { return New(KindQueueFull, code, message) }
func Overloaded(code, message string) *Error        { return New(KindOverloaded, code, message) }

// Unauthorized mirrors dbmco-flux-etl's DataIsolationViolation constructor:
// a tenant/entity access violation is the same shape regardless of whether
// it originates from a missing role or a cross-tenant read attempt.
func Unauthorized(accessor, resource string) *Error {
	return New(KindUnauthorized, "ROW_LEVEL_ISOLATION", fmt.Sprintf("%s is not authorized to access %s", accessor, resource)).
		WithContext("accessor", accessor).
		WithContext("resource", resource)
}

// Is reports whether err is a *corerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
