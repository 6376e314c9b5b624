package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptsmith/promptsmith/internal/openai"
)

// Rubric is the judge's structured assessment of one variant image. All
// score fields are clamped to [0,1].
type Rubric struct {
	PromptAdherence          float64
	SubjectFidelity          float64
	CompositionQuality       float64
	StyleCoherence           float64
	TechnicalArtifactPenalty float64
	Confidence               float64
	FailureTags              []string
	StrengthTags             []string
	Rationale                string
}

// JudgeInput is the judge request.
type JudgeInput struct {
	BasePrompt      string
	VariantPrompt   string
	ObjectivePreset string
	Constraints     Constraints
	Image           []byte
}

// Judge scores a generated image against the prompt intent.
type Judge interface {
	Score(ctx context.Context, in JudgeInput) (Rubric, error)
}

const maxRubricTags = 8

// NeutralRubric is the fallback applied when judging fails: midpoint
// scores with low confidence so degraded variants never outrank cleanly
// judged ones on confidence ties.
func NeutralRubric() Rubric {
	return Rubric{
		PromptAdherence:          0.5,
		SubjectFidelity:          0.5,
		CompositionQuality:       0.5,
		StyleCoherence:           0.5,
		TechnicalArtifactPenalty: 0.5,
		Confidence:               0.3,
		FailureTags:              []string{},
		StrengthTags:             []string{},
		Rationale:                "",
	}
}

var rubricSchema = openai.MustSchema("rubric.json", `{
	"type": "object",
	"required": [
		"prompt_adherence", "subject_fidelity", "composition_quality",
		"style_coherence", "technical_artifact_penalty", "confidence"
	],
	"properties": {
		"prompt_adherence": {"type": "number"},
		"subject_fidelity": {"type": "number"},
		"composition_quality": {"type": "number"},
		"style_coherence": {"type": "number"},
		"technical_artifact_penalty": {"type": "number"},
		"confidence": {"type": "number"},
		"failure_tags": {"type": "array", "items": {"type": "string"}},
		"strength_tags": {"type": "array", "items": {"type": "string"}},
		"rationale": {"type": "string"}
	}
}`)

type modelJudge struct {
	client *openai.Client
	model  string
}

// NewJudge builds the model-backed judge.
func NewJudge(client *openai.Client, model string) Judge {
	return &modelJudge{client: client, model: model}
}

func (j *modelJudge) Score(ctx context.Context, in JudgeInput) (Rubric, error) {
	system := "You are a strict image quality evaluator. Return strict JSON only with keys: " +
		"prompt_adherence, subject_fidelity, composition_quality, style_coherence, " +
		"technical_artifact_penalty, confidence, failure_tags, strength_tags, rationale. " +
		"All score fields must be float 0..1. failure_tags and strength_tags must be arrays of short strings."
	user := fmt.Sprintf(
		"Base prompt: %s\nVariant prompt: %s\nObjective preset: %s\nMust include: %v\nMust avoid: %v\n"+
			"Evaluate the image against this prompt intent.",
		in.BasePrompt, in.VariantPrompt, in.ObjectivePreset, in.Constraints.MustInclude, in.Constraints.MustAvoid)

	input := []openai.Message{
		openai.TextMessage("system", system),
		{
			Role: "user",
			Content: []openai.Part{
				openai.TextPart(user),
				openai.ImagePart(in.Image),
			},
		},
	}

	// One retry on malformed output, then the caller falls back to the
	// neutral rubric.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := j.client.ResponsesText(ctx, j.model, input)
		if err != nil {
			return Rubric{}, err
		}
		var payload struct {
			PromptAdherence          float64  `json:"prompt_adherence"`
			SubjectFidelity          float64  `json:"subject_fidelity"`
			CompositionQuality       float64  `json:"composition_quality"`
			StyleCoherence           float64  `json:"style_coherence"`
			TechnicalArtifactPenalty float64  `json:"technical_artifact_penalty"`
			Confidence               float64  `json:"confidence"`
			FailureTags              []string `json:"failure_tags"`
			StrengthTags             []string `json:"strength_tags"`
			Rationale                string   `json:"rationale"`
		}
		if err := openai.UnmarshalValidated(rubricSchema, raw, &payload); err != nil {
			lastErr = err
			continue
		}
		rationale := strings.TrimSpace(payload.Rationale)
		if rationale == "" {
			rationale = "No rationale returned."
		}
		return Rubric{
			PromptAdherence:          clamp01(payload.PromptAdherence),
			SubjectFidelity:          clamp01(payload.SubjectFidelity),
			CompositionQuality:       clamp01(payload.CompositionQuality),
			StyleCoherence:           clamp01(payload.StyleCoherence),
			TechnicalArtifactPenalty: clamp01(payload.TechnicalArtifactPenalty),
			Confidence:               clamp01(payload.Confidence),
			FailureTags:              limitTags(payload.FailureTags),
			StrengthTags:             limitTags(payload.StrengthTags),
			Rationale:                rationale,
		}, nil
	}
	return Rubric{}, lastErr
}

func limitTags(tags []string) []string {
	out := []string{}
	for _, tag := range tags {
		if t := strings.TrimSpace(tag); t != "" {
			out = append(out, t)
		}
		if len(out) == maxRubricTags {
			break
		}
	}
	return out
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
