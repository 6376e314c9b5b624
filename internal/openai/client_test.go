package openai

import (
	"testing"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

func TestClassifyStatusServerErrorIsRetryable(t *testing.T) {
	err := classifyStatus("image generation", 503, nil)
	if err.Code != apperr.CodeOpenAIUpstreamError {
		t.Fatalf("unexpected code %s", err.Code)
	}
	if !apperr.Retryable(err) {
		t.Fatalf("upstream 5xx should be retryable")
	}
}

func TestClassifyStatusClientErrorIsNotRetryable(t *testing.T) {
	body := []byte(`{"error":{"message":"Invalid value for 'size'."}}`)
	err := classifyStatus("image generation", 400, body)
	if err.Code != apperr.CodeOpenAIUpstreamError {
		t.Fatalf("unexpected code %s", err.Code)
	}
	if apperr.Retryable(err) {
		t.Fatalf("deterministic 400 must not be retried")
	}
}

func TestClassifyStatusSafetyRejection(t *testing.T) {
	body := []byte(`{"error":{"message":"Your request was rejected by our content policy."}}`)
	err := classifyStatus("image generation", 400, body)
	if err.Code != apperr.CodeOpenAISafetyRejection {
		t.Fatalf("unexpected code %s", err.Code)
	}
	if apperr.Retryable(err) {
		t.Fatalf("safety rejection must not be retried")
	}
}
