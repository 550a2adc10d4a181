// Package domainerrors carries coded errors across layer boundaries.
//
// Stores and clients return sentinel or transport errors; services translate them
// into a coded *Error so callers can branch with HasCode without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error class.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeConflict           Code = "conflict"
	CodeUserRejected       Code = "user_rejected"
	CodeKycRequired        Code = "kyc_required"
	CodeSignatureInvalid   Code = "signature_invalid"
	CodeNetwork            Code = "network_error"
	CodeExpiredSession     Code = "session_expired"
	CodeWalletUnavailable  Code = "wallet_unavailable"
	CodeBusy               Code = "busy"
	CodeBadData            Code = "bad_data"
	CodeUnauthorized       Code = "unauthorized"
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInternal           Code = "internal_error"
)

// Error is a coded error. Fields holds per-field messages for validation errors.
type Error struct {
	Code      Code
	Message   string
	Fields    map[string]string
	Retryable bool
	Err       error
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

// New builds a coded error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryableByDefault(code)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err, Retryable: retryableByDefault(code)}
}

// Validation builds a CodeValidation error with per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "invalid input", Fields: fields}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the outermost coded error is marked retryable.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

func retryableByDefault(code Code) bool {
	switch code {
	case CodeNetwork, CodeUserRejected, CodeSignatureInvalid, CodeBusy, CodeWalletUnavailable:
		return true
	default:
		return false
	}
}
