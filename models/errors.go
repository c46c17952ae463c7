package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures, both per-target and per-request.
type ErrorKind string

// Per-target kinds are recorded in Failure outcomes; the rest surface at
// the API boundary or at startup.
const (
	ErrCodeNavigationTimeout = ErrorKind("NAVIGATION_TIMEOUT")
	ErrCodeElementNotFound   = ErrorKind("ELEMENT_NOT_FOUND")
	ErrCodeReadinessTimeout  = ErrorKind("READINESS_TIMEOUT")
	ErrCodeCaptureFailure    = ErrorKind("CAPTURE_FAILURE")

	ErrCodeNoImage       = ErrorKind("NO_IMAGE")
	ErrCodeConfiguration = ErrorKind("CONFIGURATION_ERROR")

	ErrCodeInvalidInput       = ErrorKind("INVALID_INPUT")
	ErrCodeBrowserUnavailable = ErrorKind("BROWSER_UNAVAILABLE")
	ErrCodeRateLimited        = ErrorKind("RATE_LIMITED")
	ErrCodeUnauthorized       = ErrorKind("UNAUTHORIZED")
	ErrCodeInternal           = ErrorKind("INTERNAL_ERROR")
)

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    ErrorKind
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code ErrorKind, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first ScrapeError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorKind) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Code == code
}
