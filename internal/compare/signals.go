package compare

import (
	"context"
	"errors"
	"strings"

	"github.com/promptsmith/promptsmith/internal/openai"
)

// SemanticScorer produces the semantic identity-consistency score between
// a baseline and a candidate image.
type SemanticScorer interface {
	Score(ctx context.Context, baseline, candidate []byte) (float64, error)
}

// VisionResult is the structural-drift assessment of the vision signal.
type VisionResult struct {
	Score                  float64
	FacialStructureChanged bool
	LightingShift          string
	StyleDrift             string
	Notes                  string
}

// VisionScorer produces the vision structural-drift signal.
type VisionScorer interface {
	Evaluate(ctx context.Context, baseline, candidate []byte) (VisionResult, error)
}

var semanticSchema = openai.MustSchema("semantic.json", `{
	"type": "object",
	"required": ["semantic_similarity"],
	"properties": {
		"semantic_similarity": {"type": "number"}
	}
}`)

var visionSchema = openai.MustSchema("vision.json", `{
	"type": "object",
	"required": ["facial_structure_changed", "lighting_shift", "style_drift", "vision_structural_score"],
	"properties": {
		"facial_structure_changed": {"type": "boolean"},
		"lighting_shift": {"type": "string"},
		"style_drift": {"type": "string"},
		"vision_structural_score": {"type": "number"},
		"notes": {"type": "string"}
	}
}`)

type modelSemanticScorer struct {
	client *openai.Client
	model  string
}

// NewSemanticScorer builds the model-backed semantic scorer. Without an
// API key the scorer reports the signal unavailable, which degrades the
// compare instead of failing it.
func NewSemanticScorer(client *openai.Client, model string) SemanticScorer {
	if !client.Enabled() {
		return disabledScorer{}
	}
	return &modelSemanticScorer{client: client, model: model}
}

// disabledScorer stands in for both signals when no upstream is configured.
type disabledScorer struct{}

func (disabledScorer) Score(context.Context, []byte, []byte) (float64, error) {
	return 0, errSignalDisabled
}

func (disabledScorer) Evaluate(context.Context, []byte, []byte) (VisionResult, error) {
	return VisionResult{}, errSignalDisabled
}

var errSignalDisabled = errors.New("model signal disabled: no API key configured")

func (s *modelSemanticScorer) Score(ctx context.Context, baseline, candidate []byte) (float64, error) {
	input := []openai.Message{
		openai.TextMessage("system",
			"You score semantic identity consistency between two images. "+
				`Return strict JSON only: {"semantic_similarity": <float 0..1>}.`),
		{
			Role: "user",
			Content: []openai.Part{
				openai.TextPart("Image A is baseline. Image B is candidate."),
				openai.ImagePart(baseline),
				openai.ImagePart(candidate),
			},
		},
	}

	// One retry on malformed output before the signal is declared missing.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.client.ResponsesText(ctx, s.model, input)
		if err != nil {
			return 0, err
		}
		var payload struct {
			SemanticSimilarity float64 `json:"semantic_similarity"`
		}
		if err := openai.UnmarshalValidated(semanticSchema, raw, &payload); err != nil {
			lastErr = err
			continue
		}
		return Clamp01(payload.SemanticSimilarity), nil
	}
	return 0, lastErr
}

type modelVisionScorer struct {
	client *openai.Client
	model  string
}

// NewVisionScorer builds the model-backed vision scorer. Without an API
// key it reports the signal unavailable, same as the semantic scorer.
func NewVisionScorer(client *openai.Client, model string) VisionScorer {
	if !client.Enabled() {
		return disabledScorer{}
	}
	return &modelVisionScorer{client: client, model: model}
}

func (s *modelVisionScorer) Evaluate(ctx context.Context, baseline, candidate []byte) (VisionResult, error) {
	input := []openai.Message{
		openai.TextMessage("system",
			"Compare baseline image A and candidate image B for structural drift. "+
				"Return strict JSON only with keys: facial_structure_changed (bool), "+
				"lighting_shift (one of low/moderate/high), style_drift (one of low/moderate/high), "+
				"vision_structural_score (float 0..1), notes (short string)."),
		{
			Role: "user",
			Content: []openai.Part{
				openai.TextPart("Image A is baseline. Image B is candidate."),
				openai.ImagePart(baseline),
				openai.ImagePart(candidate),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.client.ResponsesText(ctx, s.model, input)
		if err != nil {
			return VisionResult{}, err
		}
		var payload struct {
			FacialStructureChanged bool    `json:"facial_structure_changed"`
			LightingShift          string  `json:"lighting_shift"`
			StyleDrift             string  `json:"style_drift"`
			VisionStructuralScore  float64 `json:"vision_structural_score"`
			Notes                  string  `json:"notes"`
		}
		if err := openai.UnmarshalValidated(visionSchema, raw, &payload); err != nil {
			lastErr = err
			continue
		}
		notes := strings.TrimSpace(payload.Notes)
		if notes == "" {
			notes = "Model-evaluated structural comparison."
		}
		return VisionResult{
			Score:                  Clamp01(payload.VisionStructuralScore),
			FacialStructureChanged: payload.FacialStructureChanged,
			LightingShift:          NormalizeShiftLevel(payload.LightingShift),
			StyleDrift:             NormalizeShiftLevel(payload.StyleDrift),
			Notes:                  notes,
		}, nil
	}
	return VisionResult{}, lastErr
}

// NormalizeShiftLevel coerces a model-reported level to low/moderate/high,
// defaulting to moderate for anything unexpected.
func NormalizeShiftLevel(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return "low"
	case "high":
		return "high"
	case "moderate":
		return "moderate"
	default:
		return "moderate"
	}
}
