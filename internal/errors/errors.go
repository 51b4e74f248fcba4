// Package errors provides error code definitions shared across the client
// consistency layer. Codes split into network-class failures, which trigger
// the offline fallback or a queue retry, and logic failures, which propagate
// to the caller.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCryptoFailed   ErrorCode = "CRYPTO_FAILED"

	// Session errors
	ErrNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"
	ErrSessionMismatch ErrorCode = "SESSION_MISMATCH"

	// Network-class errors (transient; never surfaced as hard failures)
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrTimeout      ErrorCode = "NETWORK_TIMEOUT"
	ErrServerStatus ErrorCode = "SERVER_ERROR"

	// Sync errors
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"

	// Real-time channel errors
	ErrChannelAuth   ErrorCode = "CHANNEL_AUTH_FAILED"
	ErrChannelClosed ErrorCode = "CHANNEL_CLOSED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or ErrInternal for plain errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsNetwork reports whether err is a transient network-class failure. The
// facade falls back to the local replica only on these; everything else is
// surfaced to the caller.
func IsNetwork(err error) bool {
	switch CodeOf(err) {
	case ErrNetwork, ErrTimeout, ErrServerStatus:
		return true
	}
	return false
}
