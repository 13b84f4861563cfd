package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("query is required"), http.StatusBadRequest},
		{"timeout", New(KindTimeout, "deadline exceeded"), http.StatusGatewayTimeout},
		{"rate limited", New(KindRateLimited, "blocked", "indeed"), http.StatusTooManyRequests},
		{"source failure", New(KindSourceFailure, "all sources failed"), http.StatusServiceUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped classified", fmt.Errorf("search: %w", New(KindTimeout, "")), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("status 503")
	err := &Error{Kind: KindSourceFailure, Message: "all sources failed", Sources: []string{"adzuna", "static"}, Err: cause}
	want := "source_failure: all sources failed (sources: adzuna, static): status 503"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose cause")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(KindUnknown, nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestKind_Retryable(t *testing.T) {
	if KindValidation.Retryable() {
		t.Error("validation errors are not retryable")
	}
	if !KindTimeout.Retryable() || !KindSourceFailure.Retryable() || !KindRateLimited.Retryable() {
		t.Error("timeout, rate-limited and source failures are retryable")
	}
}
