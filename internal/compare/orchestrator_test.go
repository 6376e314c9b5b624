package compare

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"testing"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/pixel"
	"github.com/promptsmith/promptsmith/internal/repo"
	"github.com/promptsmith/promptsmith/internal/store"
)

type fakeSemantic struct {
	score float64
	err   error
}

func (f fakeSemantic) Score(context.Context, []byte, []byte) (float64, error) {
	return f.score, f.err
}

type fakeVision struct {
	result VisionResult
	err    error
}

func (f fakeVision) Evaluate(context.Context, []byte, []byte) (VisionResult, error) {
	return f.result, f.err
}

type compareFixture struct {
	repo      *repo.Repository
	images    *store.BlobStore
	artifacts *store.BlobStore
}

func newCompareFixture(t *testing.T) *compareFixture {
	t.Helper()
	images := store.NewBlobStore(t.TempDir())
	artifacts := store.NewBlobStore(t.TempDir())
	r, err := repo.Open(t.TempDir(), images, artifacts, 0.30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return &compareFixture{repo: r, images: images, artifacts: artifacts}
}

func (f *compareFixture) orchestrator(semantic SemanticScorer, vision VisionScorer) *Orchestrator {
	return NewOrchestrator(f.repo, f.images, pixel.NewEngine(f.artifacts), semantic, vision,
		log.New(io.Discard, "", 0))
}

func (f *compareFixture) addImageCommit(t *testing.T, projectID string, c color.RGBA) repo.CommitRecord {
	t.Helper()
	if _, err := f.repo.EnsureProject(projectID); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	id, err := f.repo.ReserveCommitID()
	if err != nil {
		t.Fatalf("ReserveCommitID: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	ref, err := f.images.Put(id, "img_01.png", buf.Bytes())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	commit, err := f.repo.CreateCommit(repo.CommitRecord{
		CommitID:   id,
		ProjectID:  projectID,
		Prompt:     "prompt " + id,
		Model:      "test-model",
		ImagePaths: []string{ref},
		Status:     repo.CommitStatusSuccess,
	})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	return commit
}

func TestCompareAgainstActiveBaseline(t *testing.T) {
	f := newCompareFixture(t)
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	baseline := f.addImageCommit(t, "demo", gray)
	candidate := f.addImageCommit(t, "demo", gray)
	if _, err := f.repo.SetBaseline("demo", baseline.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}

	o := f.orchestrator(
		fakeSemantic{score: 0.9},
		fakeVision{result: VisionResult{Score: 0.2, LightingShift: "low", StyleDrift: "low", Notes: "minor drift"}},
	)
	report, err := o.Compare(context.Background(), Request{
		ProjectID:         "demo",
		CandidateCommitID: candidate.CommitID,
	})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if report.ReportID != "r0001" {
		t.Fatalf("report id = %q", report.ReportID)
	}
	if report.BaselineCommitID != baseline.CommitID || report.CandidateCommitID != candidate.CommitID {
		t.Fatalf("commit ids = %s / %s", report.BaselineCommitID, report.CandidateCommitID)
	}
	if report.Degraded {
		t.Fatalf("report unexpectedly degraded")
	}
	if report.PixelDiffScore > 0.01 {
		t.Fatalf("identical images pixel score = %v", report.PixelDiffScore)
	}
	if report.SemanticSimilarity != 0.9 || report.VisionStructuralScore != 0.2 {
		t.Fatalf("model scores = %v / %v", report.SemanticSimilarity, report.VisionStructuralScore)
	}
	// 0.40*(1-0.9) + 0.30*0 + 0.30*0.2 = 0.1
	if report.DriftScore != 0.1 {
		t.Fatalf("drift = %v, want 0.1", report.DriftScore)
	}
	if report.Verdict != VerdictPass {
		t.Fatalf("verdict = %q, want pass", report.Verdict)
	}
	if report.Explanation.Notes != "minor drift" {
		t.Fatalf("explanation notes = %q", report.Explanation.Notes)
	}
	for _, key := range []string{"diff_heatmap", "overlay"} {
		ref, ok := report.Artifacts[key]
		if !ok || !f.artifacts.Exists(ref) {
			t.Fatalf("artifact %s missing: %q", key, ref)
		}
	}
}

func TestCompareDegradedWhenSignalsUnavailable(t *testing.T) {
	f := newCompareFixture(t)
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	baseline := f.addImageCommit(t, "demo", gray)
	candidate := f.addImageCommit(t, "demo", gray)
	if _, err := f.repo.SetBaseline("demo", baseline.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}

	o := f.orchestrator(
		fakeSemantic{err: errors.New("signal down")},
		fakeVision{err: errors.New("signal down")},
	)
	report, err := o.Compare(context.Background(), Request{
		ProjectID:         "demo",
		CandidateCommitID: candidate.CommitID,
	})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if !report.Degraded {
		t.Fatalf("report should be degraded")
	}
	if report.SemanticSimilarity != 0.5 || report.VisionStructuralScore != 0.5 {
		t.Fatalf("neutral scores = %v / %v, want 0.5", report.SemanticSimilarity, report.VisionStructuralScore)
	}
	// Low pixel drift with missing signals cannot prove a pass.
	if report.Verdict != VerdictInconclusive {
		t.Fatalf("verdict = %q, want inconclusive", report.Verdict)
	}
	if report.Explanation.Notes != "Degraded compare: missing semantic, vision signal(s)." {
		t.Fatalf("notes = %q", report.Explanation.Notes)
	}
}

func TestCompareBaselineOverride(t *testing.T) {
	f := newCompareFixture(t)
	baseline := f.addImageCommit(t, "demo", color.RGBA{R: 10, G: 10, B: 10, A: 255})
	override := f.addImageCommit(t, "demo", color.RGBA{R: 20, G: 20, B: 20, A: 255})
	candidate := f.addImageCommit(t, "demo", color.RGBA{R: 30, G: 30, B: 30, A: 255})
	if _, err := f.repo.SetBaseline("demo", baseline.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}

	o := f.orchestrator(fakeSemantic{score: 0.9}, fakeVision{result: VisionResult{Score: 0.1}})
	report, err := o.Compare(context.Background(), Request{
		ProjectID:         "demo",
		CandidateCommitID: candidate.CommitID,
		BaselineCommitID:  &override.CommitID,
	})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.BaselineCommitID != override.CommitID {
		t.Fatalf("baseline = %s, want override %s", report.BaselineCommitID, override.CommitID)
	}
}

func TestCompareRequiresBaseline(t *testing.T) {
	f := newCompareFixture(t)
	candidate := f.addImageCommit(t, "demo", color.RGBA{A: 255})

	o := f.orchestrator(fakeSemantic{score: 0.9}, fakeVision{})
	_, err := o.Compare(context.Background(), Request{
		ProjectID:         "demo",
		CandidateCommitID: candidate.CommitID,
	})
	if !apperr.IsCode(err, apperr.CodeBaselineNotSet) {
		t.Fatalf("err = %v, want BASELINE_NOT_SET", err)
	}
}

func TestCompareRejectsCommitWithoutImage(t *testing.T) {
	f := newCompareFixture(t)
	baseline := f.addImageCommit(t, "demo", color.RGBA{A: 255})
	if _, err := f.repo.SetBaseline("demo", baseline.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	id, err := f.repo.ReserveCommitID()
	if err != nil {
		t.Fatalf("ReserveCommitID: %v", err)
	}
	msg := "OPENAI_UPSTREAM_ERROR: upstream failed"
	if _, err := f.repo.CreateCommit(repo.CommitRecord{
		CommitID:  id,
		ProjectID: "demo",
		Prompt:    "broken",
		Model:     "test-model",
		Status:    repo.CommitStatusFailed,
		Error:     &msg,
	}); err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}

	o := f.orchestrator(fakeSemantic{score: 0.9}, fakeVision{})
	_, err = o.Compare(context.Background(), Request{
		ProjectID:         "demo",
		CandidateCommitID: id,
	})
	if !apperr.IsCode(err, apperr.CodeCommitNotFound) {
		t.Fatalf("err = %v, want COMMIT_NOT_FOUND", err)
	}
}
