package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

const imageSize = "1024x1024"

// GenerateImage produces a new image from a text prompt and returns its
// PNG bytes.
func (c *Client) GenerateImage(ctx context.Context, model, prompt, quality string) ([]byte, error) {
	if !c.Enabled() {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"OPENAI_API_KEY is missing.")
	}
	payload := map[string]any{
		"model":  model,
		"prompt": prompt,
		"size":   imageSize,
		"n":      1,
	}
	if isGPTImageModel(model) {
		if quality != "" {
			payload["quality"] = quality
		}
	} else {
		// Only DALL-E generations document response_format; GPT Image
		// returns base64 content by default.
		payload["response_format"] = "b64_json"
	}
	raw, err := c.postJSON(ctx, "image generation", "/v1/images/generations", payload)
	if err != nil {
		return nil, err
	}
	return c.decodeImagePayload(ctx, "image generation", raw)
}

// EditImage produces a new image conditioned on an anchor image and a
// prompt, via the multipart edits endpoint.
func (c *Client) EditImage(ctx context.Context, model, prompt, quality string, anchor []byte) ([]byte, error) {
	if !c.Enabled() {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"OPENAI_API_KEY is missing.")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":  model,
		"prompt": prompt,
		"size":   imageSize,
		"n":      "1",
	}
	if isGPTImageModel(model) && quality != "" {
		fields["quality"] = quality
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
				"image edit: failed to encode request: %v", err)
		}
	}
	part, err := form.CreateFormFile("image", "anchor.png")
	if err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"image edit: failed to encode request: %v", err)
	}
	if _, err := part.Write(anchor); err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"image edit: failed to encode request: %v", err)
	}
	if err := form.Close(); err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"image edit: failed to encode request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/images/edits", &body)
	if err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"image edit: failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	raw, err := c.do(ctx, "image edit", req)
	if err != nil {
		return nil, err
	}
	return c.decodeImagePayload(ctx, "image edit", raw)
}

func isGPTImageModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-image")
}

// decodeImagePayload extracts image bytes from a generations/edits
// response: inline base64 when present, otherwise a download URL.
func (c *Client) decodeImagePayload(ctx context.Context, op string, raw []byte) ([]byte, error) {
	var parsed struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s response was not valid JSON: %v", op, err)
	}
	if len(parsed.Data) == 0 {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"%s response did not include image data.", op)
	}
	item := parsed.Data[0]
	if item.B64JSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
				"%s returned invalid base64 image data: %v", op, err)
		}
		return decoded, nil
	}
	if item.URL != "" {
		return c.downloadImage(ctx, item.URL)
	}
	return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
		"%s returned neither b64_json nor URL.", op)
}

func (c *Client) downloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"image download: failed to build request: %v", err)
	}
	return c.do(ctx, "image download", req)
}
