// Package errors provides the structured error type shared by the license bot
// packages.
//
// ContextualError records which component failed, what it was doing, and how
// the failure should be handled by the workflow: validation errors are shown
// to the user and recovered locally, external errors abort the session, and
// correlation errors mean a message the session depends on has disappeared.
//
// Usage:
//
//	err := errors.New("store", "CreateLicense", store.ErrLicenseLimit).WithKind(errors.KindValidation)
//	msg := errors.UserMessage(err)
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for recovery purposes.
type Kind int

// Error kinds.
const (
	// KindExternal is a failed call to the store, the messaging surface or
	// another collaborator. It is the zero value so unclassified errors are
	// handled as critical.
	KindExternal Kind = iota
	// KindValidation is a user-input problem such as the license cap.
	KindValidation
	// KindCorrelation means a message or interaction the session relies on
	// is gone.
	KindCorrelation
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCorrelation:
		return "correlation"
	default:
		return "external"
	}
}

// ContextualError is a structured error type that provides consistent context
// about where and why an error occurred.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "store", "publish").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Kind classifies the error for the workflow's recovery rules.
	Kind Kind

	// StatusCode is an optional HTTP or gateway status code.
	StatusCode int

	// Message is an optional short notice suitable for showing to the user.
	Message string

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Validation is shorthand for a KindValidation error carrying a user notice.
func Validation(component, operation, message string, cause error) *ContextualError {
	return New(component, operation, cause).WithKind(KindValidation).WithMessage(message)
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	} else if e.Message != "" {
		base += ": " + e.Message
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithKind sets the error kind.
func (e *ContextualError) WithKind(kind Kind) *ContextualError {
	e.Kind = kind
	return e
}

// WithStatusCode sets the status code.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithMessage sets the user-facing notice.
func (e *ContextualError) WithMessage(msg string) *ContextualError {
	e.Message = msg
	return e
}

// WithDetails sets the details map.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// KindOf returns the kind of the outermost ContextualError in err's chain.
// Errors without one are external.
func KindOf(err error) Kind {
	var ce *ContextualError
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	return KindExternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// GenericMessage is shown when an error carries no user notice of its own.
const GenericMessage = "Something went wrong while processing your request. Please try again later."

// UserMessage returns the first user-facing notice found in err's chain, or
// GenericMessage.
func UserMessage(err error) string {
	for err != nil {
		var ce *ContextualError
		if !stderrors.As(err, &ce) {
			break
		}
		if ce.Message != "" {
			return ce.Message
		}
		err = ce.Cause
	}
	return GenericMessage
}
