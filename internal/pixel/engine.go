// Package pixel computes the deterministic pixel-difference signal of the
// compare pipeline: a blend of global SSIM distance and per-channel
// histogram distance, plus heatmap and overlay artifacts.
package pixel

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"

	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/store"
)

const (
	ssimWeight      = 0.65
	histogramWeight = 0.35
	histogramBins   = 64
	overlayAlpha    = 0.40
)

// Result is the pixel signal with its artifact references (relative to
// the artifact store root).
type Result struct {
	Score             float64
	SSIMDiff          float64
	HistogramDistance float64
	HeatmapPath       string
	OverlayPath       string
}

// Engine compares two encoded images and writes diff artifacts.
type Engine struct {
	artifacts *store.BlobStore
}

// NewEngine creates an engine writing artifacts into the given store.
func NewEngine(artifacts *store.BlobStore) *Engine {
	return &Engine{artifacts: artifacts}
}

// Compare scores candidate against baseline and stores diff_heatmap.png
// and overlay.png under the report id. The candidate is resized to the
// baseline's dimensions before any metric is computed.
func (e *Engine) Compare(baselinePNG, candidatePNG []byte, reportID string) (Result, error) {
	baseline, err := decodeRGBA(baselinePNG)
	if err != nil {
		return Result{}, apperr.New(apperr.CodeComparePipelineFailed, http.StatusInternalServerError,
			"failed to decode baseline image: %v", err)
	}
	candidate, err := decodeRGBA(candidatePNG)
	if err != nil {
		return Result{}, apperr.New(apperr.CodeComparePipelineFailed, http.StatusInternalServerError,
			"failed to decode candidate image: %v", err)
	}
	if candidate.Bounds().Dx() != baseline.Bounds().Dx() || candidate.Bounds().Dy() != baseline.Bounds().Dy() {
		candidate = resize(candidate, baseline.Bounds().Dx(), baseline.Bounds().Dy())
	}

	width := baseline.Bounds().Dx()
	height := baseline.Bounds().Dy()
	n := width * height

	baseCh := channelPlanes(baseline)
	candCh := channelPlanes(candidate)

	baseGray := grayPlane(baseCh, n)
	candGray := grayPlane(candCh, n)

	ssimDiff := clamp01(1.0 - globalSSIM(baseGray, candGray))
	histDistance := histogramDistance(baseCh, candCh, n)
	score := clamp01(ssimWeight*ssimDiff + histogramWeight*histDistance)

	diffMap := make([]float64, n)
	for i := 0; i < n; i++ {
		d := abs(baseCh[0][i]-candCh[0][i]) + abs(baseCh[1][i]-candCh[1][i]) + abs(baseCh[2][i]-candCh[2][i])
		diffMap[i] = d / 3.0
	}

	heatmap := renderHeatmap(diffMap, width, height)
	overlay := blend(baseline, heatmap, overlayAlpha)

	heatmapRef, err := e.putPNG(reportID, "diff_heatmap.png", heatmap)
	if err != nil {
		return Result{}, err
	}
	overlayRef, err := e.putPNG(reportID, "overlay.png", overlay)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Score:            score,
		SSIMDiff:         ssimDiff,
		HistogramDistance: histDistance,
		HeatmapPath:      heatmapRef,
		OverlayPath:      overlayRef,
	}, nil
}

func (e *Engine) putPNG(reportID, name string, img *image.RGBA) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", apperr.New(apperr.CodeComparePipelineFailed, http.StatusInternalServerError,
			"failed to encode %s: %v", name, err)
	}
	return e.artifacts.Put(reportID, name, buf.Bytes())
}

func decodeRGBA(data []byte) (*image.RGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst, nil
}

func resize(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// channelPlanes extracts normalized [0,1] R, G, B planes.
func channelPlanes(img *image.RGBA) [3][]float64 {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	n := width * height
	var planes [3][]float64
	for c := range planes {
		planes[c] = make([]float64, n)
	}
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := img.PixOffset(x, y)
			planes[0][i] = float64(img.Pix[offset]) / 255.0
			planes[1][i] = float64(img.Pix[offset+1]) / 255.0
			planes[2][i] = float64(img.Pix[offset+2]) / 255.0
			i++
		}
	}
	return planes
}

func grayPlane(channels [3][]float64, n int) []float64 {
	gray := make([]float64, n)
	for i := 0; i < n; i++ {
		gray[i] = (channels[0][i] + channels[1][i] + channels[2][i]) / 3.0
	}
	return gray
}

// globalSSIM computes SSIM over whole-image statistics rather than a
// sliding window. Identical images score 1.
func globalSSIM(x, y []float64) float64 {
	const c1 = 0.01 * 0.01
	const c2 = 0.03 * 0.03

	muX := mean(x)
	muY := mean(y)

	var varX, varY, cov float64
	for i := range x {
		dx := x[i] - muX
		dy := y[i] - muY
		varX += dx * dx
		varY += dy * dy
		cov += dx * dy
	}
	n := float64(len(x))
	varX /= n
	varY /= n
	cov /= n

	numerator := (2.0*muX*muY + c1) * (2.0*cov + c2)
	denominator := (muX*muX + muY*muY + c1) * (varX + varY + c2)
	if denominator == 0 {
		return 1.0
	}
	return clamp01(numerator / denominator)
}

// histogramDistance averages the per-channel L1 distance between the two
// normalized 64-bin histograms, halved so the result stays within [0,1].
func histogramDistance(x, y [3][]float64, n int) float64 {
	total := 0.0
	for c := 0; c < 3; c++ {
		hx := histogram(x[c], n)
		hy := histogram(y[c], n)
		distance := 0.0
		for b := 0; b < histogramBins; b++ {
			distance += abs(hx[b] - hy[b])
		}
		total += 0.5 * distance
	}
	return clamp01(total / 3.0)
}

func histogram(plane []float64, n int) [histogramBins]float64 {
	var hist [histogramBins]float64
	for _, v := range plane {
		bin := int(v * histogramBins)
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		hist[bin]++
	}
	for b := range hist {
		hist[b] /= float64(n)
	}
	return hist
}

// renderHeatmap maps per-pixel difference to red intensity over a faint
// blue base.
func renderHeatmap(diffMap []float64, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := clamp01(diffMap[i])
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(d * 255.0),
				G: 0,
				B: uint8((1.0 - d) * 70.0),
				A: 255,
			})
			i++
		}
	}
	return img
}

func blend(base, top *image.RGBA, alpha float64) *image.RGBA {
	bounds := base.Bounds()
	out := image.NewRGBA(bounds)
	for i := 0; i < len(base.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = uint8((1.0-alpha)*float64(base.Pix[i+c]) + alpha*float64(top.Pix[i+c]))
		}
		out.Pix[i+3] = 255
	}
	return out
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
