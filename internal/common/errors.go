package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes. Provider- and storage-side failures are always absorbed into
// failed attempts or cache misses; only INVALID_ARGUMENT and CONFIG_ERROR
// surface to callers directly.
const (
	CodeImageAcquisition = "IMAGE_ACQUISITION"
	CodeBackendTimeout   = "BACKEND_TIMEOUT"
	CodeBackendProtocol  = "BACKEND_PROTOCOL"
	CodeValidation       = "VALIDATION"
	CodeCacheIO          = "CACHE_IO"
	CodeConfig           = "CONFIG_ERROR"
	CodeRegistry         = "REGISTRY_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInternal         = "INTERNAL"
)

// Common application errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidation       = errors.New("validation failed")
	ErrTimeout          = errors.New("deadline exceeded")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the AppError code carried by err, or empty if err is not an
// AppError anywhere in its chain.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
