package eval

import (
	"math"
	"sort"
	"strings"
)

// Composite score weights.
const (
	adherenceWeight   = 0.35
	fidelityWeight    = 0.20
	compositionWeight = 0.20
	styleWeight       = 0.15
	penaltyWeight     = 0.10
)

// Failure tag fragments that count as hard-rule violations.
var hardRuleFragments = []string{"artifact", "watermark", "limb"}

// CompositeScore computes the weighted rubric aggregate, rounded to four
// decimal places. The penalty subtracts, so the result can dip below zero.
func CompositeScore(r Rubric) float64 {
	score := adherenceWeight*r.PromptAdherence +
		fidelityWeight*r.SubjectFidelity +
		compositionWeight*r.CompositionQuality +
		styleWeight*r.StyleCoherence -
		penaltyWeight*r.TechnicalArtifactPenalty
	return round4(score)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// HardRuleViolations counts failure tags containing a hard-rule fragment.
func HardRuleViolations(failureTags []string) int {
	count := 0
	for _, tag := range failureTags {
		lowered := strings.ToLower(tag)
		for _, fragment := range hardRuleFragments {
			if strings.Contains(lowered, fragment) {
				count++
				break
			}
		}
	}
	return count
}

// rankable reports whether a variant participates in the leaderboard.
func rankable(v Variant) bool {
	return v.Status == VariantEvaluated || v.Status == VariantEvaluatedDegraded
}

// RankVariants orders the evaluated variants by composite score descending,
// breaking ties by confidence descending, penalty ascending, hard-rule
// violations ascending, then variant id ascending. It assigns dense ranks
// and returns the ordered leaderboard with the top-k variant ids.
func RankVariants(variants []Variant) (leaderboard []Variant, topK []string) {
	leaderboard = make([]Variant, 0, len(variants))
	for _, v := range variants {
		if rankable(v) {
			leaderboard = append(leaderboard, v.clone())
		}
	}
	sort.SliceStable(leaderboard, func(i, j int) bool {
		a, b := leaderboard[i], leaderboard[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.TechnicalArtifactPenalty != b.TechnicalArtifactPenalty {
			return a.TechnicalArtifactPenalty < b.TechnicalArtifactPenalty
		}
		av, bv := HardRuleViolations(a.FailureTags), HardRuleViolations(b.FailureTags)
		if av != bv {
			return av < bv
		}
		return a.VariantID < b.VariantID
	})

	for i := range leaderboard {
		rank := i + 1
		leaderboard[i].Rank = &rank
	}

	topK = []string{}
	for i := 0; i < len(leaderboard) && i < 3; i++ {
		topK = append(topK, leaderboard[i].VariantID)
	}
	return leaderboard, topK
}
