package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

// Part is one content element of a responses-API message.
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is one input message of a responses-API call.
type Message struct {
	Role    string `json:"role"`
	Content []Part `json:"content"`
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []Part{{Type: "input_text", Text: text}}}
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Type: "input_text", Text: text}
}

// ImagePart builds an inline-image content part from PNG bytes.
func ImagePart(png []byte) Part {
	return Part{Type: "input_image", ImageURL: DataURLPNG(png)}
}

// DataURLPNG encodes PNG bytes as a data URL.
func DataURLPNG(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// ResponsesText calls the responses API and returns the concatenated text
// output. Responses without any text output are upstream errors.
func (c *Client) ResponsesText(ctx context.Context, model string, input []Message) (string, error) {
	if !c.Enabled() {
		return "", apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"OPENAI_API_KEY is missing.")
	}
	payload := map[string]any{
		"model": model,
		"input": input,
	}
	raw, err := c.postJSON(ctx, "model response", "/v1/responses", payload)
	if err != nil {
		return "", err
	}

	var parsed struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"model response was not valid JSON: %v", err)
	}
	if parsed.OutputText != "" {
		return parsed.OutputText, nil
	}
	text := ""
	for _, item := range parsed.Output {
		for _, part := range item.Content {
			if part.Type == "output_text" || part.Type == "text" {
				if text != "" {
					text += "\n"
				}
				text += part.Text
			}
		}
	}
	if text == "" {
		return "", apperr.New(apperr.CodeOpenAIUpstreamError, http.StatusBadGateway,
			"model response did not contain text output.")
	}
	return text, nil
}
