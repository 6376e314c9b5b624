package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/promptsmith/promptsmith/internal/openai"
)

// RefineInput carries the ranked run outcome into prompt refinement.
type RefineInput struct {
	BasePrompt      string
	ObjectivePreset string
	Constraints     Constraints
	Leaderboard     []Variant
}

// Refiner rewrites the base prompt using run outcomes, producing one
// suggestion per tier.
type Refiner interface {
	Refine(ctx context.Context, in RefineInput) (map[string]Suggestion, error)
}

var suggestionSchema = openai.MustSchema("suggestions.json", `{
	"type": "object",
	"required": ["conservative", "balanced", "aggressive"],
	"properties": {
		"conservative": {"$ref": "#/$defs/tier"},
		"balanced": {"$ref": "#/$defs/tier"},
		"aggressive": {"$ref": "#/$defs/tier"}
	},
	"$defs": {
		"tier": {
			"type": "object",
			"required": ["prompt_text"],
			"properties": {
				"prompt_text": {"type": "string"},
				"rationale": {"type": "string"}
			}
		}
	}
}`)

type modelRefiner struct {
	client *openai.Client
	model  string
}

// NewRefiner builds the model-backed refiner.
func NewRefiner(client *openai.Client, model string) Refiner {
	return &modelRefiner{client: client, model: model}
}

// leaderboardSummary is the compact per-variant view sent to the refiner.
type leaderboardSummary struct {
	VariantID      string   `json:"variant_id"`
	VariantPrompt  string   `json:"variant_prompt"`
	CompositeScore float64  `json:"composite_score"`
	StrengthTags   []string `json:"strength_tags"`
	FailureTags    []string `json:"failure_tags"`
	Rationale      string   `json:"rationale"`
}

func summarize(items []Variant) []leaderboardSummary {
	out := make([]leaderboardSummary, 0, len(items))
	for _, v := range items {
		out = append(out, leaderboardSummary{
			VariantID:      v.VariantID,
			VariantPrompt:  v.VariantPrompt,
			CompositeScore: v.CompositeScore,
			StrengthTags:   cloneStrings(v.StrengthTags),
			FailureTags:    cloneStrings(v.FailureTags),
			Rationale:      v.Rationale,
		})
	}
	return out
}

func (r *modelRefiner) Refine(ctx context.Context, in RefineInput) (map[string]Suggestion, error) {
	top := in.Leaderboard
	if len(top) > 3 {
		top = top[:3]
	}
	var bottom []Variant
	if n := len(in.Leaderboard); n > 3 {
		start := n - 2
		if start < 3 {
			start = 3
		}
		bottom = in.Leaderboard[start:]
	}

	topJSON, _ := json.Marshal(summarize(top))
	bottomJSON, _ := json.Marshal(summarize(bottom))

	system := "You rewrite image prompts using run outcomes. Return strict JSON only: " +
		`{"conservative":{"prompt_text":"...","rationale":"..."},` +
		`"balanced":{"prompt_text":"...","rationale":"..."},` +
		`"aggressive":{"prompt_text":"...","rationale":"..."}}`
	user := fmt.Sprintf(
		"Base prompt: %s\nObjective preset: %s\nMust include: %v\nMust avoid: %v\n"+
			"Top variants: %s\nWorst variants: %s\n"+
			"Each suggestion must mention concrete strengths/failures from the summaries.",
		in.BasePrompt, in.ObjectivePreset, in.Constraints.MustInclude, in.Constraints.MustAvoid,
		topJSON, bottomJSON)

	raw, err := r.client.ResponsesText(ctx, r.model, []openai.Message{
		openai.TextMessage("system", system),
		openai.TextMessage("user", user),
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]struct {
		PromptText string `json:"prompt_text"`
		Rationale  string `json:"rationale"`
	}
	if err := openai.UnmarshalValidated(suggestionSchema, raw, &payload); err != nil {
		return nil, err
	}

	out := make(map[string]Suggestion, 3)
	for _, tier := range []string{TierConservative, TierBalanced, TierAggressive} {
		item := payload[tier]
		prompt := strings.TrimSpace(item.PromptText)
		if prompt == "" {
			return nil, &openai.MalformedPayloadError{Reason: fmt.Sprintf("missing prompt_text for tier %q", tier)}
		}
		out[tier] = Suggestion{PromptText: prompt, Rationale: strings.TrimSpace(item.Rationale)}
	}
	return out, nil
}

// FallbackSuggestions derives the three tiers deterministically from the
// leaderboard when the model refiner is unavailable.
func FallbackSuggestions(in RefineInput) map[string]Suggestion {
	base := strings.TrimSpace(in.BasePrompt)

	var topPrompt, topStrength, topFailure string
	if len(in.Leaderboard) > 0 {
		top := in.Leaderboard[0]
		topPrompt = strings.TrimSpace(top.VariantPrompt)
		if len(top.StrengthTags) > 0 {
			topStrength = top.StrengthTags[0]
		}
		if len(top.FailureTags) > 0 {
			topFailure = top.FailureTags[0]
		}
	}

	conservative := base
	if topPrompt != "" {
		conservative = topPrompt
	}
	conservativeRationale := "Keep best-performing structure from the top variant."
	if topStrength != "" {
		conservativeRationale = fmt.Sprintf("Keep best-performing structure from the top variant and preserve strength: %s.", topStrength)
	}

	balanced := fmt.Sprintf("%s. Improve composition clarity and subject fidelity.", base)
	if topPrompt != "" {
		balanced = fmt.Sprintf("%s. Improve composition clarity and subject fidelity while preserving intent.", topPrompt)
	}
	balancedRationale := "Blend top strengths with targeted fixes."
	if topFailure != "" {
		balancedRationale = fmt.Sprintf("Blend top strengths with targeted fixes for failure tag: %s.", topFailure)
	}

	aggressive := fmt.Sprintf(
		"%s. Dramatically rework camera angle, lighting direction, and style treatment for higher visual impact while preserving the core subject.",
		base)
	aggressiveRationale := fmt.Sprintf(
		"Explore a higher-variance rewrite tuned for objective '%s' while keeping core intent.",
		in.ObjectivePreset)

	return map[string]Suggestion{
		TierConservative: {PromptText: conservative, Rationale: conservativeRationale},
		TierBalanced:     {PromptText: balanced, Rationale: balancedRationale},
		TierAggressive:   {PromptText: aggressive, Rationale: aggressiveRationale},
	}
}
