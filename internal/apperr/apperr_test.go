package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAsUnwrapsWrappedError(t *testing.T) {
	base := New(CodeCommitNotFound, http.StatusNotFound, "commit '%s' was not found", "c0042")
	wrapped := fmt.Errorf("loading anchor: %w", base)

	ae, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected As to recover the application error")
	}
	if ae.Code != CodeCommitNotFound || ae.Status != http.StatusNotFound {
		t.Fatalf("unexpected error recovered: %+v", ae)
	}
	if !IsCode(wrapped, CodeCommitNotFound) {
		t.Fatalf("IsCode should match through wrapping")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", New(CodeOpenAITimeout, http.StatusGatewayTimeout, "image generation timed out."), true},
		{"transient upstream", NewTransient(CodeOpenAIUpstreamError, http.StatusBadGateway, "upstream server error (503)."), true},
		{"deterministic upstream", New(CodeOpenAIUpstreamError, http.StatusBadGateway, "request failed (400)."), false},
		{"safety rejection", New(CodeOpenAISafetyRejection, http.StatusBadGateway, "rejected by the content safety system."), false},
		{"invalid request", New(CodeInvalidRequest, http.StatusBadRequest, "n_variants must be between 1 and 6."), false},
		{"plain error", errors.New("disk full"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
