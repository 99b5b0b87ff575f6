package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Endpoint:   EndpointLoadPageChunk,
				Message:    "internal server error",
				Err:        errors.New("connection reset"),
			},
			expected: "notion loadPageChunk server (status 500): internal server error: connection reset",
		},
		{
			name: "error with notion error name",
			apiError: &APIError{
				StatusCode: 400,
				ErrorClass: ErrorClassClient,
				Endpoint:   EndpointSearch,
				Name:       "ValidationError",
				Message:    "Invalid input.",
			},
			expected: "notion search ValidationError (status 400): Invalid input.",
		},
		{
			name: "rate limit error",
			apiError: &APIError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Endpoint:   EndpointSyncRecordValues,
				Message:    "429 Too Many Requests",
			},
			expected: "notion syncRecordValues rate_limit (status 429): 429 Too Many Requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.apiError.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{
		StatusCode: 500,
		ErrorClass: ErrorClassServer,
		Message:    "server error",
		Err:        wrappedErr,
	}

	if unwrapped := apiError.Unwrap(); unwrapped != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, wrappedErr)
	}
	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}

	bare := &APIError{StatusCode: 404, ErrorClass: ErrorClassClient}
	if unwrapped := bare.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestDecodeAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantClass   ErrorClass
		wantName    string
		wantMessage string
	}{
		{
			name:        "notion error body",
			status:      400,
			body:        `{"errorId":"e1","name":"ValidationError","message":"Invalid input."}`,
			wantClass:   ErrorClassClient,
			wantName:    "ValidationError",
			wantMessage: "Invalid input.",
		},
		{
			name:        "plain text body",
			status:      502,
			body:        "bad gateway\n",
			wantClass:   ErrorClassServer,
			wantMessage: "bad gateway",
		},
		{
			name:        "empty body keeps status",
			status:      429,
			body:        "",
			wantClass:   ErrorClassRateLimit,
			wantMessage: "429 Too Many Requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := fmt.Sprintf("%d %s", tt.status, http.StatusText(tt.status))
			got := decodeAPIError(EndpointLoadPageChunk, tt.status, status, []byte(tt.body))
			if got.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", got.ErrorClass, tt.wantClass)
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"api error", &APIError{ErrorClass: ErrorClassServer}, ErrorClassServer},
		{"wrapped api error", fmt.Errorf("x: %w", &APIError{ErrorClass: ErrorClassClient}), ErrorClassClient},
		{"cancelled", context.Canceled, ""},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), ""},
		{"network", errors.New("connection refused"), ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrap: %w", &APIError{StatusCode: http.StatusNotFound})) {
		t.Error("IsNotFound() = false for wrapped 404")
	}
	if IsNotFound(&APIError{StatusCode: http.StatusBadRequest}) {
		t.Error("IsNotFound() = true for 400")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("IsNotFound() = true for plain error")
	}
}
