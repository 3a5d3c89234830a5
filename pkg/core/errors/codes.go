// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     errors
// Description: Error codes and their gRPC status mapping
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package errors

import "google.golang.org/grpc/codes"

// Code represents a structured error code for categorizing errors
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInternal           Code = "INTERNAL"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeTimeout            Code = "TIMEOUT"
	CodeCanceled           Code = "CANCELED"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeConnectionFailed   Code = "CONNECTION_FAILED"
	CodeStorageError       Code = "STORAGE_ERROR"
	CodeInvalidConfig      Code = "INVALID_CONFIG"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeResourceExhausted  Code = "RESOURCE_EXHAUSTED"
)

// String returns the string representation of the error code
func (c Code) String() string {
	return string(c)
}

// GRPCCode returns the gRPC status code for this error code
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeInvalidInput, CodeInvalidConfig:
		return codes.InvalidArgument
	case CodeTimeout:
		return codes.DeadlineExceeded
	case CodeCanceled:
		return codes.Canceled
	case CodeAlreadyExists:
		return codes.AlreadyExists
	case CodeServiceUnavailable, CodeConnectionFailed:
		return codes.Unavailable
	case CodeUnauthenticated:
		return codes.Unauthenticated
	case CodeResourceExhausted:
		return codes.ResourceExhausted
	case CodeInternal, CodeStorageError:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error code
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return 404
	case CodeInvalidInput, CodeInvalidConfig:
		return 400
	case CodeUnauthenticated:
		return 401
	case CodeResourceExhausted:
		return 429
	case CodeAlreadyExists:
		return 409
	case CodeTimeout:
		return 504
	case CodeCanceled:
		return 499
	case CodeServiceUnavailable, CodeConnectionFailed:
		return 503
	default:
		return 500
	}
}

// FromGRPCCode maps a gRPC status code back to an error code
func FromGRPCCode(c codes.Code) Code {
	switch c {
	case codes.OK:
		return ""
	case codes.NotFound:
		return CodeNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return CodeInvalidInput
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCanceled
	case codes.AlreadyExists:
		return CodeAlreadyExists
	case codes.Unavailable:
		return CodeServiceUnavailable
	case codes.Unauthenticated, codes.PermissionDenied:
		return CodeUnauthenticated
	case codes.ResourceExhausted:
		return CodeResourceExhausted
	case codes.Internal, codes.DataLoss:
		return CodeInternal
	default:
		return CodeUnknown
	}
}
