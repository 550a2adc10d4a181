package identity

import (
	"context"
	"errors"
	"fmt"

	dErrors "minerva/pkg/domain-errors"
)

// ErrorCategory is the normalized failure taxonomy for authority calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the authority took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorUnavailable indicates a transport failure or a 5xx response
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorBadData indicates the response did not match the envelope contract
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorRejected indicates a 4xx response or success=false
	ErrorRejected ErrorCategory = "rejected"
)

// RemoteError wraps an authority failure with its category and the server's
// own error code and message when it sent one.
type RemoteError struct {
	Category   ErrorCategory
	Operation  string
	Status     int
	Code       string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s %d]: %s: %v", e.Operation, e.Category, e.Status, msg, e.Underlying)
	}
	return fmt.Sprintf("%s [%s %d]: %s", e.Operation, e.Category, e.Status, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Underlying
}

// NewRemoteError creates a categorized authority error.
func NewRemoteError(category ErrorCategory, operation string, status int, message string, underlying error) *RemoteError {
	return &RemoteError{
		Category:   category,
		Operation:  operation,
		Status:     status,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorUnavailable,
	}
}

// StatusMapper picks the domain code for a rejected response. It receives the
// HTTP status and the server's error string.
type StatusMapper func(status int, code string) dErrors.Code

// Classify turns any error returned by Transport.Do into a coded domain error.
// Rejections go through mapStatus; everything else is a network or bad-data
// failure.
func Classify(err error, mapStatus StatusMapper) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeNetwork, "request cancelled")
		}
		return dErrors.Wrap(err, dErrors.CodeNetwork, "request failed")
	}

	switch re.Category {
	case ErrorRejected:
		return dErrors.Wrap(err, mapStatus(re.Status, re.Code), re.userMessage())
	case ErrorBadData:
		return dErrors.Wrap(err, dErrors.CodeBadData, "unexpected response from server")
	default:
		de := dErrors.Wrap(err, dErrors.CodeNetwork, "server unreachable")
		de.Retryable = true
		return de
	}
}

func (e *RemoteError) userMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("request rejected with status %d", e.Status)
	}
}
