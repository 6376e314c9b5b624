// Package eval implements the asynchronous eval pipeline: plan prompt
// variants, generate images in parallel, judge them, rank the results, and
// refine the prompt. Failures are isolated per variant; any fallback or
// variant failure latches the run's degraded flag without failing the run.
package eval

// Run statuses. The stage field tracks the same values while the run is in
// flight; terminal statuses replace the stage.
const (
	StatusQueued            = "queued"
	StatusPlanning          = "planning"
	StatusGenerating        = "generating"
	StatusEvaluating        = "evaluating"
	StatusRefining          = "refining"
	StatusCompleted         = "completed"
	StatusCompletedDegraded = "completed_degraded"
	StatusFailed            = "failed"
)

// Variant statuses.
const (
	VariantPlanned           = "planned"
	VariantGenerated         = "generated"
	VariantGenerationFailed  = "generation_failed"
	VariantEvaluated         = "evaluated"
	VariantEvaluatedDegraded = "evaluated_degraded"
	VariantEvaluationSkipped = "evaluation_skipped"
)

// Suggestion tiers.
const (
	TierConservative = "conservative"
	TierBalanced     = "balanced"
	TierAggressive   = "aggressive"
)

// Constraints are hard prompt requirements carried through planning and
// judging.
type Constraints struct {
	MustInclude []string `json:"must_include"`
	MustAvoid   []string `json:"must_avoid"`
}

func (c Constraints) clone() Constraints {
	return Constraints{
		MustInclude: cloneStrings(c.MustInclude),
		MustAvoid:   cloneStrings(c.MustAvoid),
	}
}

// Suggestion is one refined prompt proposal.
type Suggestion struct {
	PromptText string `json:"prompt_text"`
	Rationale  string `json:"rationale"`
}

// Progress counts variant outcomes. Generation advances either the
// generated or the failed counter; evaluation advances the evaluated
// counter exactly once per variant.
type Progress struct {
	TotalVariants     int `json:"total_variants"`
	GeneratedVariants int `json:"generated_variants"`
	EvaluatedVariants int `json:"evaluated_variants"`
	FailedVariants    int `json:"failed_variants"`
}

// Variant is one prompt mutation and everything that happened to it.
type Variant struct {
	VariantID                string   `json:"variant_id"`
	VariantPrompt            string   `json:"variant_prompt"`
	MutationTags             []string `json:"mutation_tags"`
	ParentCommitID           *string  `json:"parent_commit_id"`
	Status                   string   `json:"status"`
	GenerationLatencyMS      *int64   `json:"generation_latency_ms"`
	JudgeLatencyMS           *int64   `json:"judge_latency_ms"`
	CommitID                 *string  `json:"commit_id"`
	ImageURL                 *string  `json:"image_url"`
	Rationale                string   `json:"rationale"`
	Confidence               float64  `json:"confidence"`
	PromptAdherence          float64  `json:"prompt_adherence"`
	SubjectFidelity          float64  `json:"subject_fidelity"`
	CompositionQuality       float64  `json:"composition_quality"`
	StyleCoherence           float64  `json:"style_coherence"`
	TechnicalArtifactPenalty float64  `json:"technical_artifact_penalty"`
	StrengthTags             []string `json:"strength_tags"`
	FailureTags              []string `json:"failure_tags"`
	CompositeScore           float64  `json:"composite_score"`
	Rank                     *int     `json:"rank"`
	Error                    *string  `json:"error"`
}

func (v Variant) clone() Variant {
	out := v
	out.MutationTags = cloneStrings(v.MutationTags)
	out.StrengthTags = cloneStrings(v.StrengthTags)
	out.FailureTags = cloneStrings(v.FailureTags)
	out.ParentCommitID = clonePtr(v.ParentCommitID)
	out.GenerationLatencyMS = clonePtr(v.GenerationLatencyMS)
	out.JudgeLatencyMS = clonePtr(v.JudgeLatencyMS)
	out.CommitID = clonePtr(v.CommitID)
	out.ImageURL = clonePtr(v.ImageURL)
	out.Rank = clonePtr(v.Rank)
	out.Error = clonePtr(v.Error)
	return out
}

// newVariant initializes a planned variant with neutral scores and the
// worst-case artifact penalty.
func newVariant(id, prompt string, mutationTags []string) Variant {
	return Variant{
		VariantID:                id,
		VariantPrompt:            prompt,
		MutationTags:             cloneStrings(mutationTags),
		Status:                   VariantPlanned,
		TechnicalArtifactPenalty: 1.0,
		StrengthTags:             []string{},
		FailureTags:              []string{},
	}
}

// Run is the full state of one eval run. Runs live in process memory only
// and do not survive a restart; the commits they produce do.
type Run struct {
	RunID           string                `json:"run_id"`
	ProjectID       string                `json:"project_id"`
	BasePrompt      string                `json:"base_prompt"`
	ParentCommitID  *string               `json:"parent_commit_id"`
	AnchorCommitID  *string               `json:"anchor_commit_id"`
	ObjectivePreset string                `json:"objective_preset"`
	ImageModel      string                `json:"image_model"`
	NVariants       int                   `json:"n_variants"`
	Quality         string                `json:"quality"`
	Constraints     Constraints           `json:"constraints"`
	Status          string                `json:"status"`
	Stage           string                `json:"stage"`
	Degraded        bool                  `json:"degraded"`
	Error           *string               `json:"error"`
	Progress        Progress              `json:"progress"`
	Variants        []Variant             `json:"variants"`
	Leaderboard     []Variant             `json:"leaderboard"`
	TopK            []string              `json:"top_k"`
	Suggestions     map[string]Suggestion `json:"suggestions"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at"`
	CompletedAt     *string               `json:"completed_at"`
}

// Clone deep-copies the run. The store hands out and accepts only clones,
// so callers can never alias internal state.
func (r *Run) Clone() *Run {
	out := *r
	out.ParentCommitID = clonePtr(r.ParentCommitID)
	out.AnchorCommitID = clonePtr(r.AnchorCommitID)
	out.Error = clonePtr(r.Error)
	out.CompletedAt = clonePtr(r.CompletedAt)
	out.Constraints = r.Constraints.clone()
	out.TopK = cloneStrings(r.TopK)
	out.Variants = cloneVariants(r.Variants)
	out.Leaderboard = cloneVariants(r.Leaderboard)
	out.Suggestions = make(map[string]Suggestion, len(r.Suggestions))
	for k, v := range r.Suggestions {
		out.Suggestions[k] = v
	}
	return &out
}

func cloneVariants(items []Variant) []Variant {
	out := make([]Variant, len(items))
	for i := range items {
		out[i] = items[i].clone()
	}
	return out
}

func cloneStrings(items []string) []string {
	if items == nil {
		return []string{}
	}
	out := make([]string, len(items))
	copy(out, items)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func emptySuggestions() map[string]Suggestion {
	return map[string]Suggestion{
		TierConservative: {},
		TierBalanced:     {},
		TierAggressive:   {},
	}
}
