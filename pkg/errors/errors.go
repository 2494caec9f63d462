// Package errors defines the structured error type shared by every
// Caliper component: the context tree, blackboard, stream codec, query
// parser and pipeline all surface failures as *AppError values so that
// callers can switch on a stable Code rather than parsing messages.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// AppError is a structured, severity-tagged application error.
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity classifies how an error should be handled by its caller.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Code identifies one of the error kinds from the Caliper error model
// (value codec, context tree, blackboard/annotation protocol, stream
// codec, query parser and pipeline).
type Code string

const (
	// Value codec (pkg/variant)
	CodeInvalidType    Code = "INVALID_TYPE"
	CodeOutOfRange     Code = "OUT_OF_RANGE"
	CodeTruncatedInput Code = "TRUNCATED_INPUT"

	// Context tree / attribute registry (pkg/contexttree)
	CodeOutOfMemory Code = "OUT_OF_MEMORY"
	CodeDuplicate   Code = "DUPLICATE"
	CodeNotFound    Code = "NOT_FOUND"

	// Blackboard / annotation protocol (pkg/blackboard, pkg/caliper)
	CodeStackMismatch Code = "STACK_MISMATCH"

	// Stream codec (pkg/stream)
	CodeMalformedRecord  Code = "MALFORMED_RECORD"
	CodeDanglingRef      Code = "DANGLING_REFERENCE"
	CodeTypeConflict     Code = "TYPE_CONFLICT"
	CodeIoError          Code = "IO_ERROR"

	// Query parser (pkg/calql)
	CodeParseError Code = "PARSE_ERROR"

	// Configuration (internal/config)
	CodeConfigError Code = "CONFIG_ERROR"
)

// New creates a new AppError with medium severity and the caller's
// source location captured for diagnostics.
func New(code Code, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	return &AppError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewWithSeverity creates an AppError with an explicit severity.
func NewWithSeverity(severity Severity, code Code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = severity
	return err
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Wrap attaches a causing error and returns the receiver for chaining.
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithMetadata attaches a diagnostic key/value pair.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ToMap renders the error for structured logging.
func (e *AppError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code":      string(e.Code),
		"error_message":   e.Message,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
		"error_timestamp": e.Timestamp,
	}
	if e.Cause != nil {
		result["error_cause"] = e.Cause.Error()
	}
	for k, v := range e.Metadata {
		result["error_meta_"+k] = v
	}
	return result
}

// HasCode reports whether err is itself an *AppError with the given
// code, so instrumentation-path callers can do `errors.Is(err,
// CodeNotFound)`-style checks (Code is not an error itself). A wrapped
// *AppError is not unwrapped.
func HasCode(err error, code Code) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}
