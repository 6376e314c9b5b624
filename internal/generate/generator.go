// Package generate produces commit images: the single-image generation
// service behind POST /generate and the ImageGenerator abstraction shared
// with the eval pipeline. Without an API key generation falls back to a
// deterministic placeholder renderer so the rest of the system keeps
// functioning with degraded quality.
package generate

import (
	"context"

	"github.com/promptsmith/promptsmith/internal/openai"
)

// ImageGenerator turns prompts into PNG bytes.
type ImageGenerator interface {
	TextToImage(ctx context.Context, model, prompt, quality string) ([]byte, error)
	EditImage(ctx context.Context, model, prompt, quality string, anchor []byte) ([]byte, error)

	// Offline reports whether this generator is the deterministic
	// fallback rather than a real model.
	Offline() bool
}

// NewGenerator returns the model-backed generator when the client is
// usable, otherwise the offline fallback.
func NewGenerator(client *openai.Client) ImageGenerator {
	if client.Enabled() {
		return &modelGenerator{client: client}
	}
	return &offlineGenerator{}
}

type modelGenerator struct {
	client *openai.Client
}

func (g *modelGenerator) TextToImage(ctx context.Context, model, prompt, quality string) ([]byte, error) {
	return g.client.GenerateImage(ctx, model, prompt, quality)
}

func (g *modelGenerator) EditImage(ctx context.Context, model, prompt, quality string, anchor []byte) ([]byte, error) {
	return g.client.EditImage(ctx, model, prompt, quality, anchor)
}

func (g *modelGenerator) Offline() bool { return false }
