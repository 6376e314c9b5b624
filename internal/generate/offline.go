package generate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"

	"github.com/zeebo/blake3"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

const offlineImageSize = 256

// offlineGenerator renders a deterministic placeholder image derived from
// the prompt hash: same prompt, same pixels. Edits additionally mix in the
// anchor hash so lineage still influences the output.
type offlineGenerator struct{}

func (g *offlineGenerator) TextToImage(ctx context.Context, model, prompt, quality string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.CodeOpenAITimeout, http.StatusGatewayTimeout,
			"image generation canceled: %v", err)
	}
	return renderPlaceholder(blake3.Sum256([]byte(prompt)))
}

func (g *offlineGenerator) EditImage(ctx context.Context, model, prompt, quality string, anchor []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.CodeOpenAITimeout, http.StatusGatewayTimeout,
			"image edit canceled: %v", err)
	}
	hasher := blake3.New()
	hasher.Write([]byte(prompt))
	hasher.Write(anchor)
	var seed [32]byte
	copy(seed[:], hasher.Sum(nil))
	return renderPlaceholder(seed)
}

func (g *offlineGenerator) Offline() bool { return true }

// renderPlaceholder draws a gradient with a seed-positioned block pattern.
// Distinct prompts land on visibly different images, which keeps the pixel
// signal meaningful in offline runs.
func renderPlaceholder(seed [32]byte) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, offlineImageSize, offlineImageSize))

	base := color.RGBA{R: seed[0], G: seed[1], B: seed[2], A: 255}
	accent := color.RGBA{R: seed[3], G: seed[4], B: seed[5], A: 255}
	blocks := 4 + int(seed[6]%5)
	blockSize := offlineImageSize / blocks

	for y := 0; y < offlineImageSize; y++ {
		for x := 0; x < offlineImageSize; x++ {
			fx := float64(x) / float64(offlineImageSize-1)
			fy := float64(y) / float64(offlineImageSize-1)
			c := color.RGBA{
				R: lerpByte(base.R, accent.R, fx),
				G: lerpByte(base.G, accent.G, fy),
				B: lerpByte(base.B, accent.B, (fx+fy)/2),
				A: 255,
			}
			bx := x / blockSize
			by := y / blockSize
			if (int(seed[7+(bx+by*blocks)%24])+bx+by)%3 == 0 {
				c = accent
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to encode placeholder image: %v", err)
	}
	return buf.Bytes(), nil
}

func lerpByte(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}
