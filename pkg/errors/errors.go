// Package errors provides the canonical error taxonomy for formsync.
//
// Every failure that crosses a ProviderClient boundary is an *Error carrying
// one of a small set of kinds. Callers branch on the kind, never on the raw
// provider message, which is preserved separately as a diagnostic string.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind represents the canonical category of an error
type Kind string

const (
	// KindAuth represents missing, malformed or rejected credentials
	KindAuth Kind = "auth_error"
	// KindNetwork represents transport failures, timeouts and refused connections
	KindNetwork Kind = "network_error"
	// KindSchema represents a reference to a custom field the provider does not have
	KindSchema Kind = "schema_error"
	// KindValidation represents a local precondition failure detected before any write
	KindValidation Kind = "validation_error"
	// KindProviderRejected represents an explicit rejection by the provider API
	KindProviderRejected Kind = "provider_rejected"
	// KindPartialFailure represents a successful core write with failed best-effort writes
	KindPartialFailure Kind = "partial_failure"
	// KindConfig represents a configuration fault (unknown provider, bad settings)
	KindConfig Kind = "config_error"
	// KindInternal represents programmer errors and violated invariants
	KindInternal Kind = "internal_error"
)

// Error represents a structured error with context
type Error struct {
	Kind    Kind
	Message string

	// Provider and Op locate the failure at the adapter boundary
	Provider string
	Op       string

	// Status and FaultCode are the raw transport signals the kind was derived from
	Status    int
	FaultCode int

	// Diagnostic holds the provider's own message, untouched
	Diagnostic string

	Cause   error
	Causes  []error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" [")
		b.WriteString(e.Provider)
		if e.Op != "" {
			b.WriteString(".")
			b.WriteString(e.Op)
		}
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Causes) > 0 {
		fmt.Fprintf(&b, " (%d underlying errors)", len(e.Causes))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors so errors.Is/As see both Cause and Causes
func (e *Error) Unwrap() []error {
	out := make([]error, 0, len(e.Causes)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return append(out, e.Causes...)
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithProvider records the provider and operation the error came from
func (e *Error) WithProvider(provider, op string) *Error {
	e.Provider = provider
	e.Op = op
	return e
}

// WithDiagnostic attaches the provider's raw message
func (e *Error) WithDiagnostic(msg string) *Error {
	e.Diagnostic = msg
	return e
}

// New creates a new error with the given kind and message
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack and the boundary fields
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Kind:       kind,
			Message:    message,
			Provider:   existing.Provider,
			Op:         existing.Op,
			Status:     existing.Status,
			FaultCode:  existing.FaultCode,
			Diagnostic: existing.Diagnostic,
			Cause:      err,
			Stack:      existing.Stack,
		}
	}

	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Partial builds a PartialFailure carrying the errors of the failed best-effort steps.
// It returns nil when causes is empty.
func Partial(message string, causes []error) *Error {
	if len(causes) == 0 {
		return nil
	}
	return &Error{
		Kind:    KindPartialFailure,
		Message: message,
		Causes:  append([]error(nil), causes...),
		Stack:   captureStack(2),
	}
}

// KindOf returns the canonical kind of err. Errors produced outside this
// package are reported as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal
	}
	return e.Kind
}

// IsKind checks if the outermost *Error in the chain has the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsRetryable returns true if the error may be retried on an idempotent read
func IsRetryable(err error) bool {
	return IsKind(err, KindNetwork)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
