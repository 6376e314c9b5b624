// Package compare implements the three-signal scoring pipeline: pixel
// difference (deterministic, fatal on failure), semantic similarity, and
// vision structural drift (both model-backed, degradable).
package compare

import "math"

// Signal weights for the drift aggregation.
const (
	SemanticWeight = 0.40
	PixelWeight    = 0.30
	VisionWeight   = 0.30
)

// PixelFailThreshold decides fail vs inconclusive when a model signal is
// missing: heavy pixel damage fails outright, light damage is inconclusive.
const PixelFailThreshold = 0.70

// Verdicts.
const (
	VerdictPass         = "pass"
	VerdictFail         = "fail"
	VerdictInconclusive = "inconclusive"
)

// Clamp01 clips v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round4 rounds half away from zero to 4 decimal places. All persisted
// scores use this precision.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// DriftScore aggregates the available signals. Semantic and vision are nil
// when their signal is missing; absent terms are omitted from the sum
// without renormalizing the remaining weights.
func DriftScore(pixelDiff float64, semantic, vision *float64) float64 {
	drift := PixelWeight * pixelDiff
	if semantic != nil {
		drift += SemanticWeight * (1.0 - *semantic)
	}
	if vision != nil {
		drift += VisionWeight * *vision
	}
	return Clamp01(drift)
}

// ComputeVerdict applies the verdict rules. With every signal present the
// drift threshold decides pass/fail; with a missing signal the pixel score
// alone decides fail/inconclusive, and pass is never reachable.
func ComputeVerdict(drift, threshold, pixelDiff float64, semanticOK, visionOK bool) string {
	if !semanticOK || !visionOK {
		if pixelDiff <= PixelFailThreshold {
			return VerdictInconclusive
		}
		return VerdictFail
	}
	if drift <= threshold {
		return VerdictPass
	}
	return VerdictFail
}
