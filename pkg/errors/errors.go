// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling for the avatar control core.
// Codes follow the controller's error taxonomy: transport, bootstrap,
// persistence and protocol failures are classified so callers can decide
// whether a failure is fatal, degraded or simply discarded.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies control core errors for logging and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTransport indicates an outbound send or link failure.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeBootstrap indicates a bootstrap source could not be read or parsed.
	CodeBootstrap ErrorCode = "BOOTSTRAP_ERROR"

	// CodePersistence indicates the snapshot or metadata could not be written or read.
	CodePersistence ErrorCode = "PERSISTENCE_ERROR"

	// CodeProtocol indicates a malformed or unexpected inbound payload.
	CodeProtocol ErrorCode = "PROTOCOL_ERROR"
)

var (
	// ErrNotRegistered is returned when a task name has no registered factory.
	ErrNotRegistered = stderrors.New("task not registered")

	// ErrEmptyProcedure is returned when a submitted procedure body is empty.
	ErrEmptyProcedure = stderrors.New("empty procedure body")

	// ErrUnknownKind is returned when a schema submission has an unknown kind.
	ErrUnknownKind = stderrors.New("unknown schema kind")
)

// Error is a typed error with context for structured logging.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As converts an error to an *Error, wrapping foreign errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err (or anything it wraps) is an *Error with code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
