// Package errors provides structured error types for the chainopt
// command-line surfaces.
//
// Solver-internal invariant violations are not represented here: those are
// programmer errors and panic. This package covers the recoverable taxonomy
// of the outer surfaces — configuration parsing and file I/O — with
// machine-readable codes so the CLI can map them to exit status uniformly.
//
// # Usage
//
//	err := errors.New(errors.CodeInvalidValue, "key %q: %s", key, detail)
//	if errors.Is(err, errors.CodeInvalidValue) {
//	    // handle a malformed value
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the recoverable error categories.
const (
	// Configuration errors
	CodeInvalidConfig Code = "INVALID_CONFIG"
	CodeUnknownKey    Code = "UNKNOWN_KEY"
	CodeInvalidValue  Code = "INVALID_VALUE"

	// File and output errors
	CodeFileNotFound Code = "FILE_NOT_FOUND"
	CodeIO           Code = "IO_ERROR"

	// No feasible plan under the configured constraints
	CodeInfeasible Code = "INFEASIBLE"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns the empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
