// Package openai is a minimal client for the OpenAI images and responses
// APIs. Failures are classified into the application error taxonomy:
// timeouts, upstream errors, and safety rejections.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

// Client talks to the OpenAI HTTP API. A nil or key-less client is
// "disabled": callers are expected to use their deterministic fallbacks.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	httpc   *http.Client
}

// New creates a client. timeout bounds each request via context deadline;
// the underlying http.Client carries no timeout of its own.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		timeout: timeout,
		httpc:   &http.Client{Timeout: 0},
	}
}

// Enabled reports whether the client has an API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s: failed to encode request: %v", op, err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s: failed to build request: %v", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, op, req)
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.httpc.Do(req.WithContext(reqCtx))
	if err != nil {
		if isTimeout(err) {
			return nil, apperr.New(apperr.CodeOpenAITimeout, http.StatusGatewayTimeout,
				"%s timed out.", op)
		}
		return nil, apperr.NewTransient(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s upstream HTTP error: %v", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewTransient(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s: failed to read response: %v", op, err)
	}
	if resp.StatusCode >= 400 {
		return nil, classifyStatus(op, resp.StatusCode, raw)
	}
	return raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyStatus maps an upstream HTTP failure onto the error taxonomy.
// Server errors are transient; 400-class responses are deterministic and
// ambiguous: content-policy refusals arrive as plain 400s, so the body
// message decides.
func classifyStatus(op string, status int, body []byte) *apperr.Error {
	message := upstreamMessage(body)
	if status >= 500 {
		return apperr.NewTransient(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s upstream server error (%d).", op, status)
	}
	if (status == 400 || status == 422) && isSafetyMessage(message) {
		return apperr.New(apperr.CodeOpenAISafetyRejection, http.StatusBadGateway,
			"%s was rejected by the content safety system: %s", op, message)
	}
	if message != "" {
		return apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s request failed (%d): %s", op, status, message)
	}
	return apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
		"%s request failed (%d).", op, status)
}

func isSafetyMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"safety", "content filter", "content_filter", "content policy", "content_policy", "moderation"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func upstreamMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Error.Message)
}
