package biometric

import (
	"errors"
	"fmt"
)

// Code identifies the kind of a biometric decision failure.
type Code string

const (
	// CodeInvalidInput indicates a missing or malformed descriptor.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeInsufficientSamples indicates too few captures for enrollment.
	CodeInsufficientSamples Code = "INSUFFICIENT_SAMPLES"
	// CodeImplausibleDescriptor indicates a capture whose statistics do not look like a face.
	CodeImplausibleDescriptor Code = "IMPLAUSIBLE_DESCRIPTOR"
	// CodeSamplesTooSimilar indicates captures that are near-duplicates of each other.
	CodeSamplesTooSimilar Code = "SAMPLES_TOO_SIMILAR"
	// CodeLikelyDuplicateIdentity indicates the face already belongs to another identity.
	CodeLikelyDuplicateIdentity Code = "LIKELY_DUPLICATE_IDENTITY"
	// CodeNoEnrollments indicates there is nothing to match against.
	CodeNoEnrollments Code = "NO_ENROLLMENTS"
	// CodeNoMatch indicates no identity cleared the acceptance threshold.
	CodeNoMatch Code = "NO_MATCH"
	// CodeAmbiguousMatch indicates two identities scored too close to pick one.
	CodeAmbiguousMatch Code = "AMBIGUOUS_MATCH"
	// CodeDependencyUnavailable indicates the store or embedding source failed.
	CodeDependencyUnavailable Code = "DEPENDENCY_UNAVAILABLE"
)

// Sentinels for errors.Is. They compare by Code only.
var (
	ErrInvalidInput            = &Error{Code: CodeInvalidInput}
	ErrInsufficientSamples     = &Error{Code: CodeInsufficientSamples}
	ErrImplausibleDescriptor   = &Error{Code: CodeImplausibleDescriptor}
	ErrSamplesTooSimilar       = &Error{Code: CodeSamplesTooSimilar}
	ErrLikelyDuplicateIdentity = &Error{Code: CodeLikelyDuplicateIdentity}
	ErrNoEnrollments           = &Error{Code: CodeNoEnrollments}
	ErrNoMatch                 = &Error{Code: CodeNoMatch}
	ErrAmbiguousMatch          = &Error{Code: CodeAmbiguousMatch}
	ErrDependencyUnavailable   = &Error{Code: CodeDependencyUnavailable}
)

// Error is a recoverable, caller-reportable biometric failure.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a biometric error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With adds a context value to the error.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first biometric error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a store or embedder failure.
func Unavailable(msg string, cause error) *Error {
	return &Error{Code: CodeDependencyUnavailable, Message: msg, Cause: cause}
}

// InvalidInput builds an INVALID_INPUT error.
func InvalidInput(format string, args ...any) *Error {
	return newError(CodeInvalidInput, format, args...)
}
