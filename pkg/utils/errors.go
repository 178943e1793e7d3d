package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// CustomError represents a custom application error
type CustomError struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *CustomError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Error kinds used by the scheduler to pick a handling strategy
const (
	KindConfiguration = "configuration"
	KindValidation    = "validation"
	KindTransient     = "transient"
	KindTimeout       = "timeout"
	KindPermanent     = "permanent"
)

// NewConfigurationError flags a missing or invalid job/platform config.
// Jobs carrying one are surfaced and not scheduled.
func NewConfigurationError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusUnprocessableEntity,
		Kind:    KindConfiguration,
		Message: "Invalid configuration",
		Detail:  detail,
	}
}

// NewValidationError flags a malformed platform config at save time
func NewValidationError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Kind:    KindValidation,
		Message: "Validation failed",
		Detail:  detail,
	}
}

// NewTransientError flags a network/store failure during a run; the
// scheduler retries these with backoff.
func NewTransientError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadGateway,
		Kind:    KindTransient,
		Message: "Transient execution failure",
		Detail:  detail,
	}
}

// NewTimeoutError flags an execution that exceeded its timeout budget.
// Retried identically to transient failures.
func NewTimeoutError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusRequestTimeout,
		Kind:    KindTimeout,
		Message: "Execution timed out",
		Detail:  detail,
	}
}

// NewPermanentFailure flags a job whose retries are exhausted
func NewPermanentFailure(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusInternalServerError,
		Kind:    KindPermanent,
		Message: "Permanent failure",
		Detail:  detail,
	}
}

// IsTimeout reports whether err is a timeout error
func IsTimeout(err error) bool {
	var ce *CustomError
	return errors.As(err, &ce) && ce.Kind == KindTimeout
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	var ce *CustomError
	return errors.As(err, &ce) && ce.Kind == KindConfiguration
}
