package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := InvalidInput("Test.Op", nil, "test message")

	if err.Code != http.StatusBadRequest {
		t.Errorf("expected code %d, got %d", http.StatusBadRequest, err.Code)
	}
	if err.Error() != "test message" {
		t.Errorf("expected error string 'test message', got '%s'", err.Error())
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("cause error")
	err := Internal("Test.Op", cause, "test message")

	expected := "test message: cause error"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "not found error",
			err:      NotFound("op", nil, "not found"),
			expected: true,
		},
		{
			name:     "resource not found error",
			err:      ResourceNotFound("op", nil, "no transcript"),
			expected: true,
		},
		{
			name:     "wrapped not found error",
			err:      fmt.Errorf("outer: %w", NotFound("op", nil, "not found")),
			expected: true,
		},
		{
			name:     "other error",
			err:      InvalidInput("op", nil, "bad request"),
			expected: false,
		},
		{
			name:     "non-custom error",
			err:      fmt.Errorf("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.expected {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestKinds(t *testing.T) {
	tests := []struct {
		name         string
		err          *AppError
		expectedCode int
		expectedKind Kind
	}{
		{"quota exceeded", QuotaExceeded("op", nil, "wait"), http.StatusTooManyRequests, KindQuotaExceeded},
		{"resource disabled", ResourceDisabled("op", nil, "disabled"), http.StatusUnprocessableEntity, KindResourceDisabled},
		{"resource not found", ResourceNotFound("op", nil, "missing"), http.StatusNotFound, KindResourceNotFound},
		{"resource unavailable", ResourceUnavailable("op", nil, "gone"), http.StatusGone, KindResourceUnavailable},
		{"transient io", TransientIO("op", nil, "io"), http.StatusBadGateway, KindTransientIO},
		{"operation failed", OperationFailed("op", nil, "failed"), http.StatusBadGateway, KindOperationFailed},
		{"empty input", EmptyInput("op", "empty"), http.StatusBadRequest, KindEmptyInput},
		{"configuration", Configuration("op", nil, "no key"), http.StatusServiceUnavailable, KindConfiguration},
		{"rate limited", RateLimited("op", "slow down"), http.StatusTooManyRequests, KindRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.expectedCode {
				t.Errorf("expected code %d, got %d", tt.expectedCode, tt.err.Code)
			}
			if KindOf(tt.err) != tt.expectedKind {
				t.Errorf("expected kind %s, got %s", tt.expectedKind, KindOf(tt.err))
			}
			if !IsKind(fmt.Errorf("wrapped: %w", tt.err), tt.expectedKind) {
				t.Errorf("expected wrapped error to keep kind %s", tt.expectedKind)
			}
		})
	}
}

func TestForeignErrorHelpers(t *testing.T) {
	err := fmt.Errorf("boom")

	if KindOf(err) != KindInternal {
		t.Errorf("expected KindInternal, got %s", KindOf(err))
	}
	if KindOf(nil) != "" {
		t.Errorf("expected empty kind for nil, got %s", KindOf(nil))
	}
	if CodeOf(err) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", CodeOf(err))
	}
	if MessageOf(err) != "Internal server error" {
		t.Errorf("unexpected message %q", MessageOf(err))
	}
}
