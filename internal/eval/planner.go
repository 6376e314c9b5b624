package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptsmith/promptsmith/internal/openai"
)

// PlannedVariant is one prompt mutation proposed by the planner.
type PlannedVariant struct {
	Prompt       string
	MutationTags []string
}

// PlanInput is the planner request.
type PlanInput struct {
	BasePrompt      string
	ObjectivePreset string
	Constraints     Constraints
	NVariants       int
}

// Planner proposes semantically distinct prompt variants.
type Planner interface {
	Plan(ctx context.Context, in PlanInput) ([]PlannedVariant, error)
}

const maxMutationTags = 6

var planSchema = openai.MustSchema("plan.json", `{
	"type": "object",
	"required": ["variants"],
	"properties": {
		"variants": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["variant_prompt"],
				"properties": {
					"variant_prompt": {"type": "string"},
					"mutation_tags": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`)

type modelPlanner struct {
	client *openai.Client
	model  string
}

// NewPlanner builds the model-backed planner.
func NewPlanner(client *openai.Client, model string) Planner {
	return &modelPlanner{client: client, model: model}
}

func (p *modelPlanner) Plan(ctx context.Context, in PlanInput) ([]PlannedVariant, error) {
	system := "You are an expert image prompt-variation planner. " +
		`Return strict JSON only in this shape: {"variants":[{"variant_prompt":"...","mutation_tags":["..."]}]} ` +
		"Do not include markdown fences."
	user := fmt.Sprintf(
		"Base prompt: %s\nObjective preset: %s\nMust include: %v\nMust avoid: %v\n"+
			"Generate exactly %d semantically distinct prompt variants. "+
			"Mutation tags should include details like composition, lighting, lens, style, and negatives.",
		in.BasePrompt, in.ObjectivePreset, in.Constraints.MustInclude, in.Constraints.MustAvoid, in.NVariants)

	raw, err := p.client.ResponsesText(ctx, p.model, []openai.Message{
		openai.TextMessage("system", system),
		openai.TextMessage("user", user),
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Variants []struct {
			VariantPrompt string   `json:"variant_prompt"`
			MutationTags  []string `json:"mutation_tags"`
		} `json:"variants"`
	}
	if err := openai.UnmarshalValidated(planSchema, raw, &payload); err != nil {
		return nil, err
	}

	var planned []PlannedVariant
	for _, item := range payload.Variants {
		prompt := strings.TrimSpace(item.VariantPrompt)
		if prompt == "" {
			continue
		}
		var tags []string
		for _, tag := range item.MutationTags {
			if t := strings.TrimSpace(tag); t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) > maxMutationTags {
			tags = tags[:maxMutationTags]
		}
		planned = append(planned, PlannedVariant{Prompt: prompt, MutationTags: tags})
		if len(planned) == in.NVariants {
			break
		}
	}
	return planned, nil
}

// mutationSpecs is the deterministic planning fallback: fixed mutation
// axes applied round-robin when the model planner is unavailable.
var mutationSpecs = []struct {
	tag    string
	phrase string
}{
	{"composition", "wide cinematic framing with strong foreground-background depth"},
	{"lighting", "dramatic rim lighting with soft key light and controlled shadows"},
	{"lens", "35mm lens perspective with shallow depth of field"},
	{"style", "editorial color grading with subtle film grain"},
	{"detail", "high texture fidelity on key subject materials and surfaces"},
	{"mood", "high-contrast mood with focused subject isolation"},
	{"camera", "low-angle camera placement emphasizing subject presence"},
	{"negative", "avoid visual clutter and accidental background text"},
}

// FallbackVariants deterministically derives variants from the base prompt
// and constraints.
func FallbackVariants(in PlanInput) []PlannedVariant {
	mustInclude := trimAll(in.Constraints.MustInclude)
	mustAvoid := trimAll(in.Constraints.MustAvoid)

	planned := make([]PlannedVariant, 0, in.NVariants)
	for i := 0; i < in.NVariants; i++ {
		spec := mutationSpecs[i%len(mutationSpecs)]
		lines := []string{strings.TrimSpace(in.BasePrompt), spec.phrase}
		if len(mustInclude) > 0 {
			lines = append(lines, "Must include: "+strings.Join(mustInclude, ", ")+".")
		}
		if len(mustAvoid) > 0 {
			lines = append(lines, "Must avoid: "+strings.Join(mustAvoid, ", ")+".")
		}
		planned = append(planned, PlannedVariant{
			Prompt:       strings.Join(nonEmpty(lines), " "),
			MutationTags: []string{spec.tag},
		})
	}
	return planned
}

func trimAll(items []string) []string {
	var out []string
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func nonEmpty(items []string) []string {
	var out []string
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
