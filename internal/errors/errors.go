// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrRequestCanceled    = errors.New("request canceled")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrInvalidInterval    = errors.New("invalid refresh interval")
	ErrInvalidLeverage    = errors.New("invalid leverage filter")
	ErrUnknownColumn      = errors.New("unknown sort column")
	ErrNoTickers          = errors.New("no tickers loaded")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrDashboardStopped   = errors.New("dashboard stopped")
	ErrJournalDisabled    = errors.New("alert journal disabled")
)

// APIError represents a failed call to the market-data backend.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("api error [%s]: %s: %v", e.Operation, e.Message, e.Err)
		}
		return fmt.Sprintf("api error [%s]: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("api error [%s] %d %s: %s", e.Operation, e.StatusCode, e.StatusText(), e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusText returns the HTTP reason phrase for the status code, or "Unknown".
func (e *APIError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "Unknown"
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewAPIError creates a new APIError.
func NewAPIError(operation string, statusCode int, message string, err error) *APIError {
	return &APIError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// DataError represents a malformed field or payload from the backend.
type DataError struct {
	DataType string
	Ticker   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Ticker, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, ticker, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Ticker:   ticker,
		Message:  message,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsCanceled reports whether err stems from a superseded or stopped request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrRequestCanceled)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
