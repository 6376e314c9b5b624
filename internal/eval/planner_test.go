package eval

import (
	"strings"
	"testing"
)

func TestFallbackVariantsCyclesMutationAxes(t *testing.T) {
	in := PlanInput{
		BasePrompt: "a castle at dawn",
		NVariants:  3,
	}
	planned := FallbackVariants(in)
	if len(planned) != 3 {
		t.Fatalf("got %d variants, want 3", len(planned))
	}

	wantTags := []string{"composition", "lighting", "lens"}
	for i, pv := range planned {
		if len(pv.MutationTags) != 1 || pv.MutationTags[0] != wantTags[i] {
			t.Fatalf("variant %d tags = %v, want [%s]", i, pv.MutationTags, wantTags[i])
		}
		if !strings.HasPrefix(pv.Prompt, "a castle at dawn ") {
			t.Fatalf("variant %d prompt %q does not start with the base prompt", i, pv.Prompt)
		}
	}
	if planned[0].Prompt != "a castle at dawn wide cinematic framing with strong foreground-background depth" {
		t.Fatalf("unexpected first fallback prompt: %q", planned[0].Prompt)
	}
}

func TestFallbackVariantsInjectsConstraints(t *testing.T) {
	in := PlanInput{
		BasePrompt: "a castle at dawn",
		Constraints: Constraints{
			MustInclude: []string{"moat", " banner "},
			MustAvoid:   []string{"people"},
		},
		NVariants: 1,
	}
	planned := FallbackVariants(in)
	want := "a castle at dawn wide cinematic framing with strong foreground-background depth " +
		"Must include: moat, banner. Must avoid: people."
	if planned[0].Prompt != want {
		t.Fatalf("prompt = %q, want %q", planned[0].Prompt, want)
	}
}

func TestFallbackVariantsDeterministic(t *testing.T) {
	in := PlanInput{BasePrompt: "neon city street", NVariants: 2}
	first := FallbackVariants(in)
	second := FallbackVariants(in)
	for i := range first {
		if first[i].Prompt != second[i].Prompt {
			t.Fatalf("fallback planning is not deterministic at index %d", i)
		}
	}
}
