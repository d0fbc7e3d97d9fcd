package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the integrations server
var (
	// Identity errors
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Provider errors
	ErrUnknownProvider = errors.New("unknown provider")

	// Connection errors
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionInactive = errors.New("connection inactive")
	ErrNoRefreshToken     = errors.New("connection has no refresh token")

	// State errors
	ErrStateNotFound = errors.New("oauth state not found")
	ErrStateExpired  = errors.New("oauth state expired")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Code is a stable, caller-facing error code.
type Code string

const (
	CodeInvalidArgument    Code = "invalid_argument"
	CodeInvalidProvider    Code = "invalid_provider"
	CodeUnauthenticated    Code = "unauthenticated"
	CodePermissionDenied   Code = "permission_denied"
	CodeNotFound           Code = "not_found"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeExpiredState       Code = "expired_state"
	CodeInternal           Code = "internal"
)

// Error carries a caller-facing code alongside the internal cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCode builds a coded error wrapping err.
func WithCode(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message for err. Uncoded errors never leak their text.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to the status written by HTTP handlers.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument, CodeInvalidProvider, CodeFailedPrecondition:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExpiredState:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
