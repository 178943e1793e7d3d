package models

import "time"

// Result is the uniform envelope returned by platform services for
// expected failure modes. Services never panic for an expected failure;
// they report it here.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ok returns a successful result
func Ok() Result {
	return Result{Success: true}
}

// Fail returns a failed result with the given message
func Fail(msg string) Result {
	return Result{Success: false, Error: msg}
}

// FetchResult wraps the rows returned by a platform fetch
type FetchResult struct {
	Result
	Records []RawMetricRecord `json:"records,omitempty"`
}

// APIResponse is the generic control-surface success envelope
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse represents a structured control-surface error. No internal
// diagnostic detail is exposed externally.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the service health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    time.Duration     `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}
