package eval

import "testing"

func TestFallbackSuggestionsWithLeaderboard(t *testing.T) {
	top := newVariant("v01", "castle with dramatic rim lighting", nil)
	top.Status = VariantEvaluated
	top.StrengthTags = []string{"strong composition"}
	top.FailureTags = []string{"soft focus"}

	got := FallbackSuggestions(RefineInput{
		BasePrompt:      "a castle at dawn",
		ObjectivePreset: "aesthetic",
		Leaderboard:     []Variant{top},
	})

	conservative := got[TierConservative]
	if conservative.PromptText != "castle with dramatic rim lighting" {
		t.Fatalf("conservative prompt = %q", conservative.PromptText)
	}
	if conservative.Rationale != "Keep best-performing structure from the top variant and preserve strength: strong composition." {
		t.Fatalf("conservative rationale = %q", conservative.Rationale)
	}

	balanced := got[TierBalanced]
	if balanced.PromptText != "castle with dramatic rim lighting. Improve composition clarity and subject fidelity while preserving intent." {
		t.Fatalf("balanced prompt = %q", balanced.PromptText)
	}
	if balanced.Rationale != "Blend top strengths with targeted fixes for failure tag: soft focus." {
		t.Fatalf("balanced rationale = %q", balanced.Rationale)
	}

	aggressive := got[TierAggressive]
	if aggressive.PromptText != "a castle at dawn. Dramatically rework camera angle, lighting direction, and style treatment for higher visual impact while preserving the core subject." {
		t.Fatalf("aggressive prompt = %q", aggressive.PromptText)
	}
	if aggressive.Rationale != "Explore a higher-variance rewrite tuned for objective 'aesthetic' while keeping core intent." {
		t.Fatalf("aggressive rationale = %q", aggressive.Rationale)
	}
}

func TestFallbackSuggestionsEmptyLeaderboard(t *testing.T) {
	got := FallbackSuggestions(RefineInput{
		BasePrompt:      "a castle at dawn",
		ObjectivePreset: "adherence",
	})

	if got[TierConservative].PromptText != "a castle at dawn" {
		t.Fatalf("conservative prompt = %q", got[TierConservative].PromptText)
	}
	if got[TierConservative].Rationale != "Keep best-performing structure from the top variant." {
		t.Fatalf("conservative rationale = %q", got[TierConservative].Rationale)
	}
	if got[TierBalanced].PromptText != "a castle at dawn. Improve composition clarity and subject fidelity." {
		t.Fatalf("balanced prompt = %q", got[TierBalanced].PromptText)
	}
	if got[TierBalanced].Rationale != "Blend top strengths with targeted fixes." {
		t.Fatalf("balanced rationale = %q", got[TierBalanced].Rationale)
	}
}
