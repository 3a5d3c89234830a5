// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     errors
// Description: Coded errors with operation context and gRPC status support
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error represents a structured error with a code, the failing operation
// and optional details.
type Error struct {
	message   string
	cause     error
	code      Code
	operation string
	details   map[string]interface{}
}

// New creates a new Error with the given message
func New(message string) *Error {
	return &Error{message: message, code: CodeUnknown}
}

// Newf creates a new Error with a formatted message
func Newf(format string, args ...interface{}) *Error {
	return New(fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context. The code of a
// wrapped *Error is inherited; otherwise it is derived from a gRPC status or
// a context error.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{message: message, cause: err, code: codeOf(err)}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

func codeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case stderrors.Is(err, context.Canceled):
		return CodeCanceled
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return FromGRPCCode(s.Code())
	}
	return CodeUnknown
}

// Error implements the standard error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.operation != "" {
		b.WriteString(e.operation)
		b.WriteString(": ")
	}
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error unwrapping
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCode sets the error code
func (e *Error) WithCode(code Code) *Error {
	e.code = code
	return e
}

// WithOperation sets the operation that caused the error
func (e *Error) WithOperation(operation string) *Error {
	e.operation = operation
	return e
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
	return e
}

// Code returns the error code
func (e *Error) Code() Code {
	return e.code
}

// Operation returns the operation that caused the error
func (e *Error) Operation() string {
	return e.operation
}

// Details returns a copy of the error details
func (e *Error) Details() map[string]interface{} {
	result := make(map[string]interface{}, len(e.details))
	for k, v := range e.details {
		result[k] = v
	}
	return result
}

// LogFields returns key/value pairs suitable for the logging package
func (e *Error) LogFields() []interface{} {
	kv := []interface{}{"error", e.Error(), "error_code", string(e.code)}
	if e.operation != "" {
		kv = append(kv, "operation", e.operation)
	}
	keys := make([]string, 0, len(e.details))
	for k := range e.details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, "error_"+k, e.details[k])
	}
	return kv
}

// GRPCStatus lets status.FromError and status.Code understand *Error.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.code.GRPCCode(), e.Error())
}

// HasCode checks if any error in the chain carries the code
func HasCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// GetCode returns the code of the outermost *Error, or CodeUnknown
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return CodeUnknown
}

// ToStatus converts any error to a gRPC status error. Status errors pass
// through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return status.Convert(err).Err()
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.GRPCStatus().Err()
	}
	return status.Error(codeOf(err).GRPCCode(), err.Error())
}

// Is and As are re-exported so callers need a single errors import.
var (
	Is = stderrors.Is
	As = stderrors.As
)
