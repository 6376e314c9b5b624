package compare

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/pixel"
	"github.com/promptsmith/promptsmith/internal/repo"
	"github.com/promptsmith/promptsmith/internal/store"
)

// neutralScore stands in for a missing model signal in the persisted
// report. The drift aggregation omits the missing term entirely.
const neutralScore = 0.5

// Request identifies the two commits to compare. BaselineCommitID defaults
// to the project's active baseline.
type Request struct {
	ProjectID         string
	CandidateCommitID string
	BaselineCommitID  *string
}

// Orchestrator fans a compare out to the three signal engines and persists
// the resulting report.
type Orchestrator struct {
	repo     *repo.Repository
	images   *store.BlobStore
	pixels   *pixel.Engine
	semantic SemanticScorer
	vision   VisionScorer
	logger   *log.Logger
}

// NewOrchestrator wires the compare pipeline.
func NewOrchestrator(r *repo.Repository, images *store.BlobStore, pixels *pixel.Engine, semantic SemanticScorer, vision VisionScorer, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     r,
		images:   images,
		pixels:   pixels,
		semantic: semantic,
		vision:   vision,
		logger:   logger,
	}
}

// Compare runs the full pipeline. A pixel failure aborts the compare; a
// semantic or vision failure degrades the report instead.
func (o *Orchestrator) Compare(ctx context.Context, req Request) (repo.ComparisonReportRecord, error) {
	project, err := o.repo.GetProject(req.ProjectID)
	if err != nil {
		return repo.ComparisonReportRecord{}, err
	}

	baselineCommitID := ""
	if req.BaselineCommitID != nil && *req.BaselineCommitID != "" {
		baselineCommitID = *req.BaselineCommitID
	} else if project.ActiveBaselineCommitID != nil {
		baselineCommitID = *project.ActiveBaselineCommitID
	}
	if baselineCommitID == "" {
		return repo.ComparisonReportRecord{}, apperr.New(apperr.CodeBaselineNotSet, http.StatusConflict,
			"Set a baseline before comparing commits.")
	}

	baselineBytes, err := o.commitImage(baselineCommitID, req.ProjectID)
	if err != nil {
		return repo.ComparisonReportRecord{}, err
	}
	candidateBytes, err := o.commitImage(req.CandidateCommitID, req.ProjectID)
	if err != nil {
		return repo.ComparisonReportRecord{}, err
	}

	reportID, err := o.repo.ReserveReportID()
	if err != nil {
		return repo.ComparisonReportRecord{}, err
	}
	threshold := o.repo.ThresholdFor(req.ProjectID)

	var (
		wg           sync.WaitGroup
		pixelResult  pixel.Result
		pixelErr     error
		semanticVal  float64
		semanticErr  error
		visionResult VisionResult
		visionErr    error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		pixelResult, pixelErr = o.pixels.Compare(baselineBytes, candidateBytes, reportID)
	}()
	go func() {
		defer wg.Done()
		semanticVal, semanticErr = o.semantic.Score(ctx, baselineBytes, candidateBytes)
	}()
	go func() {
		defer wg.Done()
		visionResult, visionErr = o.vision.Evaluate(ctx, baselineBytes, candidateBytes)
	}()
	wg.Wait()

	if pixelErr != nil {
		if ae, ok := apperr.As(pixelErr); ok && ae.Code == apperr.CodeComparePipelineFailed {
			return repo.ComparisonReportRecord{}, pixelErr
		}
		return repo.ComparisonReportRecord{}, apperr.New(apperr.CodeComparePipelineFailed, http.StatusInternalServerError,
			"Pixel comparison failed: %v", pixelErr)
	}

	semanticOK := semanticErr == nil
	visionOK := visionErr == nil
	degraded := !semanticOK || !visionOK

	semanticScore := neutralScore
	var semanticTerm *float64
	if semanticOK {
		semanticScore = semanticVal
		semanticTerm = &semanticVal
	} else {
		o.logger.Printf("compare %s: semantic signal unavailable: %v", reportID, semanticErr)
	}

	visionScore := neutralScore
	var visionTerm *float64
	explanation := repo.VisionExplanation{
		FacialStructureChanged: false,
		LightingShift:          "moderate",
		StyleDrift:             "moderate",
		Notes:                  "Vision signal unavailable.",
	}
	if visionOK {
		visionScore = visionResult.Score
		visionTerm = &visionResult.Score
		explanation = repo.VisionExplanation{
			FacialStructureChanged: visionResult.FacialStructureChanged,
			LightingShift:          visionResult.LightingShift,
			StyleDrift:             visionResult.StyleDrift,
			Notes:                  visionResult.Notes,
		}
	} else {
		o.logger.Printf("compare %s: vision signal unavailable: %v", reportID, visionErr)
	}

	drift := DriftScore(pixelResult.Score, semanticTerm, visionTerm)
	verdict := ComputeVerdict(drift, threshold, pixelResult.Score, semanticOK, visionOK)

	if degraded {
		var missing []string
		if !semanticOK {
			missing = append(missing, "semantic")
		}
		if !visionOK {
			missing = append(missing, "vision")
		}
		explanation.Notes = fmt.Sprintf("Degraded compare: missing %s signal(s).", strings.Join(missing, ", "))
	}

	report := repo.ComparisonReportRecord{
		ReportID:              reportID,
		ProjectID:             req.ProjectID,
		BaselineCommitID:      baselineCommitID,
		CandidateCommitID:     req.CandidateCommitID,
		PixelDiffScore:        Round4(pixelResult.Score),
		SemanticSimilarity:    Round4(semanticScore),
		VisionStructuralScore: Round4(visionScore),
		DriftScore:            Round4(drift),
		Threshold:             Round4(threshold),
		Verdict:               verdict,
		Degraded:              degraded,
		Explanation:           explanation,
		Artifacts: map[string]string{
			"diff_heatmap": pixelResult.HeatmapPath,
			"overlay":      pixelResult.OverlayPath,
		},
	}
	return o.repo.CreateReport(report)
}

// commitImage loads the primary image of a successful commit.
func (o *Orchestrator) commitImage(commitID, projectID string) ([]byte, error) {
	commit, err := o.repo.GetCommit(commitID, projectID)
	if err != nil {
		return nil, err
	}
	ref := commit.FirstImagePath()
	if commit.Status != repo.CommitStatusSuccess || ref == "" {
		return nil, apperr.New(apperr.CodeCommitNotFound, http.StatusNotFound,
			"Commit '%s' does not have any image artifacts.", commitID)
	}
	data, err := o.images.Get(ref)
	if err != nil {
		return nil, apperr.New(apperr.CodeComparePipelineFailed, http.StatusInternalServerError,
			"Image artifact is missing for commit '%s'.", commitID)
	}
	return data, nil
}
