package booknotify

import (
	"errors"
	"fmt"
)

// Error represents a booknotify error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for booknotify operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodePublish indicates the broker rejected or could not deliver a send.
	ErrCodePublish = "PUBLISH_ERROR"

	// ErrCodeProcessing indicates the notification processor failed.
	ErrCodeProcessing = "PROCESSING_ERROR"

	// ErrCodeDecode indicates a record could not be decoded into an event.
	ErrCodeDecode = "DECODE_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrProducerClosed is returned for sends issued after the producer shut down.
	ErrProducerClosed = &Error{
		Code:    ErrCodePublish,
		Message: "producer is closed",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData)
}

// IsDecode checks if an error reports an undecodable record.
func IsDecode(err error) bool {
	return hasCode(err, ErrCodeDecode)
}

// IsPublish checks if an error reports a failed send.
func IsPublish(err error) bool {
	return hasCode(err, ErrCodePublish)
}

// IsValidation checks if an error reports invalid input.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func hasCode(err error, code string) bool {
	var bnErr *Error
	if errors.As(err, &bnErr) {
		return bnErr.Code == code
	}
	return false
}
