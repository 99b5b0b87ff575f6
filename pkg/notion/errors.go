package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRequestBlocked is returned while a shared Notion backoff is active.
	ErrRequestBlocked = errors.New("request blocked: notion backoff active")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Endpoint   string
	// Name is Notion's error name, e.g. "ValidationError"
	Name    string
	Message string
	// RetryAfter is the server-requested delay for 429 responses
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	name := e.Name
	if name == "" {
		name = string(e.ErrorClass)
	}
	if e.Err != nil {
		return fmt.Sprintf("notion %s %s (status %d): %s: %v",
			e.Endpoint, name, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("notion %s %s (status %d): %s",
		e.Endpoint, name, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a Notion 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// decodeAPIError builds an APIError from a failed response body.
func decodeAPIError(endpoint string, statusCode int, status string, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		ErrorClass: classifyStatus(statusCode),
		Endpoint:   endpoint,
		Message:    status,
	}

	var payload struct {
		ErrorID string `json:"errorId"`
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) < 512 {
			apiErr.Message = trimmed
		}
		return apiErr
	}
	apiErr.Name = payload.Name
	if payload.Message != "" {
		apiErr.Message = payload.Message
	}
	return apiErr
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classifyError categorizes an error returned by a single request attempt.
func classifyError(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ""
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors won't succeed on a second attempt
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
