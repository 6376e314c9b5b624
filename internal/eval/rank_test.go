package eval

import (
	"math"
	"testing"
)

func TestCompositeScore(t *testing.T) {
	r := Rubric{
		PromptAdherence:          0.8,
		SubjectFidelity:          0.6,
		CompositionQuality:       0.7,
		StyleCoherence:           0.5,
		TechnicalArtifactPenalty: 0.2,
	}
	// 0.35*0.8 + 0.20*0.6 + 0.20*0.7 + 0.15*0.5 - 0.10*0.2
	if got := CompositeScore(r); math.Abs(got-0.595) > 1e-9 {
		t.Fatalf("CompositeScore = %v, want 0.595", got)
	}
}

func TestCompositeScoreNotClamped(t *testing.T) {
	r := Rubric{TechnicalArtifactPenalty: 1.0}
	if got := CompositeScore(r); math.Abs(got-(-0.1)) > 1e-9 {
		t.Fatalf("CompositeScore with pure penalty = %v, want -0.1", got)
	}
}

func TestHardRuleViolations(t *testing.T) {
	tags := []string{"Watermark visible", "extra limb", "blurry", "compression ARTIFACTS"}
	if got := HardRuleViolations(tags); got != 3 {
		t.Fatalf("HardRuleViolations = %d, want 3", got)
	}
	if got := HardRuleViolations(nil); got != 0 {
		t.Fatalf("HardRuleViolations(nil) = %d, want 0", got)
	}
}

func evaluated(id string, composite, confidence, penalty float64, failureTags ...string) Variant {
	v := newVariant(id, "prompt "+id, nil)
	v.Status = VariantEvaluated
	v.CompositeScore = composite
	v.Confidence = confidence
	v.TechnicalArtifactPenalty = penalty
	v.FailureTags = failureTags
	return v
}

func TestRankVariantsOrdering(t *testing.T) {
	variants := []Variant{
		evaluated("v01", 0.5, 0.9, 0.1),
		evaluated("v02", 0.7, 0.2, 0.5),
		evaluated("v03", 0.5, 0.9, 0.1), // full tie with v01, id breaks it
		evaluated("v04", 0.5, 0.95, 0.8),
	}
	leaderboard, topK := RankVariants(variants)

	wantOrder := []string{"v02", "v04", "v01", "v03"}
	if len(leaderboard) != len(wantOrder) {
		t.Fatalf("leaderboard length = %d, want %d", len(leaderboard), len(wantOrder))
	}
	for i, want := range wantOrder {
		if leaderboard[i].VariantID != want {
			t.Fatalf("leaderboard[%d] = %s, want %s", i, leaderboard[i].VariantID, want)
		}
		if leaderboard[i].Rank == nil || *leaderboard[i].Rank != i+1 {
			t.Fatalf("leaderboard[%d] rank = %v, want %d", i, leaderboard[i].Rank, i+1)
		}
	}
	if len(topK) != 3 {
		t.Fatalf("topK length = %d, want 3", len(topK))
	}
	for i, want := range wantOrder[:3] {
		if topK[i] != want {
			t.Fatalf("topK[%d] = %s, want %s", i, topK[i], want)
		}
	}
}

func TestRankVariantsPenaltyAndViolationTieBreaks(t *testing.T) {
	a := evaluated("v01", 0.5, 0.5, 0.4)
	b := evaluated("v02", 0.5, 0.5, 0.2)
	leaderboard, _ := RankVariants([]Variant{a, b})
	if leaderboard[0].VariantID != "v02" {
		t.Fatalf("lower penalty should rank first, got %s", leaderboard[0].VariantID)
	}

	c := evaluated("v01", 0.5, 0.5, 0.2, "watermark")
	d := evaluated("v02", 0.5, 0.5, 0.2)
	leaderboard, _ = RankVariants([]Variant{c, d})
	if leaderboard[0].VariantID != "v02" {
		t.Fatalf("fewer hard-rule violations should rank first, got %s", leaderboard[0].VariantID)
	}
}

func TestRankVariantsExcludesUnevaluated(t *testing.T) {
	failed := newVariant("v01", "p", nil)
	failed.Status = VariantGenerationFailed
	skipped := newVariant("v02", "p", nil)
	skipped.Status = VariantEvaluationSkipped
	degraded := evaluated("v03", 0.4, 0.3, 0.5)
	degraded.Status = VariantEvaluatedDegraded

	leaderboard, topK := RankVariants([]Variant{failed, skipped, degraded})
	if len(leaderboard) != 1 || leaderboard[0].VariantID != "v03" {
		t.Fatalf("only evaluated variants should rank, got %v", leaderboard)
	}
	if len(topK) != 1 || topK[0] != "v03" {
		t.Fatalf("topK = %v, want [v03]", topK)
	}
}
