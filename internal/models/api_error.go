package models

import (
	"fmt"
	"strings"
)

// ErrorCode is a string type for consistent error codes.
type ErrorCode string

// Predefined error codes for API errors.
const (
	// Generic
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed    ErrorCode = "method_not_allowed"

	// Validation
	ErrorCodeMalformedPayload ErrorCode = "malformed_payload"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"

	// Storage & aggregation
	ErrorCodeStorageUnavailable ErrorCode = "storage_unavailable"
	ErrorCodeInvariantViolation ErrorCode = "internal_invariant_violation"
)

type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`           // Human-readable error message
	Details    any       `json:"details,omitempty"` // Optional: Additional details
	StatusCode int       `json:"-"`                 // HTTP status code
}

// Error makes APIError implement the error interface.
func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAPIError is a constructor for APIError.
func NewAPIError(code ErrorCode, message string, details any, statusCode int) APIError {
	return APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// ValidationError is returned by the validation layer. Code is either
// ErrorCodeMalformedPayload or ErrorCodeValidationFailed; Problems holds one
// entry per violated field rule.
type ValidationError struct {
	Code     ErrorCode
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Malformed builds a ValidationError for an unparseable payload.
func Malformed(format string, args ...any) *ValidationError {
	return &ValidationError{Code: ErrorCodeMalformedPayload, Problems: []string{fmt.Sprintf(format, args...)}}
}

// Invalid builds a ValidationError for payload constraint violations.
func Invalid(problems ...string) *ValidationError {
	return &ValidationError{Code: ErrorCodeValidationFailed, Problems: problems}
}
