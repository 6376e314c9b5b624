package eval

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/generate"
	"github.com/promptsmith/promptsmith/internal/ids"
	"github.com/promptsmith/promptsmith/internal/repo"
	"github.com/promptsmith/promptsmith/internal/store"
)

// maxParallelVariants bounds the generation and evaluation fan-out.
const maxParallelVariants = 4

var (
	allowedQualities = map[string]bool{"low": true, "medium": true, "high": true}
	allowedPresets   = map[string]bool{"adherence": true, "aesthetic": true, "product": true}
)

// CreateRunParams is the validated input for a new eval run.
type CreateRunParams struct {
	ProjectID       string
	BasePrompt      string
	ObjectivePreset string
	ImageModel      string
	NVariants       int
	Quality         string
	Constraints     Constraints
	ParentCommitID  *string
}

// Service owns eval runs: it validates requests, registers the run, and
// drives the pipeline in a background goroutine. Adapters may be nil when
// no upstream is configured; each stage then uses its deterministic
// fallback and latches the degraded flag.
type Service struct {
	repo    *repo.Repository
	images  *store.BlobStore
	runs    *RunStore
	gen     generate.ImageGenerator
	planner Planner
	judge   Judge
	refiner Refiner

	defaultImageModel string
	backoff           BackoffConfig
	logger            *log.Logger

	wg sync.WaitGroup
}

// NewService wires the eval pipeline service.
func NewService(
	r *repo.Repository,
	images *store.BlobStore,
	runs *RunStore,
	gen generate.ImageGenerator,
	planner Planner,
	judge Judge,
	refiner Refiner,
	defaultImageModel string,
	logger *log.Logger,
) *Service {
	return &Service{
		repo:              r,
		images:            images,
		runs:              runs,
		gen:               gen,
		planner:           planner,
		judge:             judge,
		refiner:           refiner,
		defaultImageModel: defaultImageModel,
		backoff:           defaultBackoffConfig(),
		logger:            logger,
	}
}

// GetRun returns a snapshot of the run.
func (s *Service) GetRun(runID string) (*Run, error) {
	return s.runs.Get(runID)
}

// Wait blocks until all background runs finish. Tests use it to observe
// terminal states without polling.
func (s *Service) Wait() {
	s.wg.Wait()
}

// CreateRun validates the request, registers a queued run, kicks off the
// background pipeline, and returns the initial snapshot.
func (s *Service) CreateRun(p CreateRunParams) (*Run, error) {
	basePrompt := strings.TrimSpace(p.BasePrompt)
	if len(basePrompt) < 5 {
		return nil, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
			"base_prompt must be at least 5 characters.")
	}
	if p.NVariants < 2 || p.NVariants > 3 {
		return nil, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
			"n_variants must be 2 or 3.")
	}
	quality := strings.TrimSpace(p.Quality)
	if quality == "" {
		quality = "medium"
	}
	if !allowedQualities[quality] {
		return nil, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
			"quality must be one of low, medium, high.")
	}
	preset := strings.TrimSpace(p.ObjectivePreset)
	if preset == "" {
		preset = "adherence"
	}
	if !allowedPresets[preset] {
		return nil, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
			"objective_preset must be one of adherence, aesthetic, product.")
	}
	imageModel := strings.TrimSpace(p.ImageModel)
	if imageModel == "" {
		imageModel = s.defaultImageModel
	}

	if _, err := s.repo.EnsureProject(p.ProjectID); err != nil {
		return nil, err
	}
	if p.ParentCommitID != nil && *p.ParentCommitID != "" {
		parent, err := s.repo.GetCommit(*p.ParentCommitID, p.ProjectID)
		if err != nil {
			return nil, err
		}
		if parent.Status != repo.CommitStatusSuccess || parent.FirstImagePath() == "" {
			return nil, apperr.New(apperr.CodeCommitNotFound, http.StatusNotFound,
				"Commit '%s' is not a successful generation with image artifacts.", *p.ParentCommitID)
		}
	} else {
		p.ParentCommitID = nil
	}

	now := ids.NowISO()
	run := &Run{
		RunID:           ids.NewRunID(),
		ProjectID:       p.ProjectID,
		BasePrompt:      basePrompt,
		ParentCommitID:  clonePtr(p.ParentCommitID),
		ObjectivePreset: preset,
		ImageModel:      imageModel,
		NVariants:       p.NVariants,
		Quality:         quality,
		Constraints:     p.Constraints.clone(),
		Status:          StatusQueued,
		Stage:           StatusQueued,
		Progress:        Progress{TotalVariants: p.NVariants},
		Variants:        []Variant{},
		Leaderboard:     []Variant{},
		TopK:            []string{},
		Suggestions:     emptySuggestions(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.runs.Put(run)

	s.wg.Add(1)
	go s.execute(run.RunID)

	return s.runs.Get(run.RunID)
}

func (s *Service) execute(runID string) {
	defer s.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Printf("eval run %s: panic: %v", runID, rec)
			s.terminalizeFailed(runID, fmt.Sprintf("%s: unexpected failure in eval pipeline", apperr.CodeEvalRunFailed))
		}
	}()

	if err := s.run(context.Background(), runID); err != nil {
		message := fmt.Sprintf("%s: %v", apperr.CodeEvalRunFailed, err)
		if ae, ok := apperr.As(err); ok {
			message = fmt.Sprintf("%s: %s", ae.Code, ae.Message)
		}
		s.logger.Printf("eval run %s: failed: %s", runID, message)
		s.terminalizeFailed(runID, message)
	}
}

func (s *Service) terminalizeFailed(runID, message string) {
	now := ids.NowISO()
	if err := s.runs.Update(runID, func(r *Run) {
		r.Status = StatusFailed
		r.Stage = StatusFailed
		r.Error = &message
		r.CompletedAt = &now
	}); err != nil {
		s.logger.Printf("eval run %s: terminalize: %v", runID, err)
	}
}

func (s *Service) run(ctx context.Context, runID string) error {
	snapshot, err := s.runs.Get(runID)
	if err != nil {
		return err
	}

	// Planning.
	if err := s.runs.SetStage(runID, StatusPlanning); err != nil {
		return err
	}
	planIn := PlanInput{
		BasePrompt:      snapshot.BasePrompt,
		ObjectivePreset: snapshot.ObjectivePreset,
		Constraints:     snapshot.Constraints,
		NVariants:       snapshot.NVariants,
	}
	planned := s.planVariants(ctx, runID, planIn)
	variants := make([]Variant, len(planned))
	for i, pv := range planned {
		variants[i] = newVariant(ids.VariantID(i), pv.Prompt, pv.MutationTags)
	}
	if err := s.runs.Update(runID, func(r *Run) { r.Variants = cloneVariants(variants) }); err != nil {
		return err
	}

	// Generating. Anchor failure is fatal; variant failures are isolated.
	if err := s.runs.SetStage(runID, StatusGenerating); err != nil {
		return err
	}
	if s.gen.Offline() {
		s.markDegraded(runID)
	}
	anchorID, anchorBytes, err := s.resolveAnchor(ctx, runID, snapshot)
	if err != nil {
		return err
	}
	if err := s.runs.Update(runID, func(r *Run) { r.AnchorCommitID = &anchorID }); err != nil {
		return err
	}
	imageBytes := s.generateVariants(ctx, runID, snapshot, variants, anchorID, anchorBytes)

	// Evaluating.
	if err := s.runs.SetStage(runID, StatusEvaluating); err != nil {
		return err
	}
	s.evaluateVariants(ctx, runID, snapshot, variants, imageBytes)

	// Ranking.
	current, err := s.runs.Get(runID)
	if err != nil {
		return err
	}
	leaderboard, topK := RankVariants(current.Variants)
	if err := s.runs.Update(runID, func(r *Run) {
		r.Leaderboard = cloneVariants(leaderboard)
		r.TopK = cloneStrings(topK)
		for i := range r.Variants {
			for _, ranked := range leaderboard {
				if r.Variants[i].VariantID == ranked.VariantID {
					r.Variants[i].Rank = clonePtr(ranked.Rank)
					break
				}
			}
		}
	}); err != nil {
		return err
	}

	// Refining.
	if err := s.runs.SetStage(runID, StatusRefining); err != nil {
		return err
	}
	suggestions := s.refineSuggestions(ctx, runID, RefineInput{
		BasePrompt:      snapshot.BasePrompt,
		ObjectivePreset: snapshot.ObjectivePreset,
		Constraints:     snapshot.Constraints,
		Leaderboard:     leaderboard,
	})
	if err := s.runs.Update(runID, func(r *Run) { r.Suggestions = suggestions }); err != nil {
		return err
	}

	// Terminal.
	final, err := s.runs.Get(runID)
	if err != nil {
		return err
	}
	status := StatusCompleted
	if final.Degraded {
		status = StatusCompletedDegraded
	}
	now := ids.NowISO()
	return s.runs.Update(runID, func(r *Run) {
		r.Status = status
		r.Stage = status
		r.CompletedAt = &now
	})
}

func (s *Service) markDegraded(runID string) {
	if err := s.runs.MarkDegraded(runID); err != nil {
		s.logger.Printf("eval run %s: mark degraded: %v", runID, err)
	}
}

func (s *Service) planVariants(ctx context.Context, runID string, in PlanInput) []PlannedVariant {
	if s.planner != nil {
		planned, err := s.planner.Plan(ctx, in)
		if err == nil && len(planned) >= in.NVariants {
			return planned[:in.NVariants]
		}
		if err != nil {
			s.logger.Printf("eval run %s: planner fallback: %v", runID, err)
		} else {
			s.logger.Printf("eval run %s: planner fallback: got %d of %d variants", runID, len(planned), in.NVariants)
		}
	}
	s.markDegraded(runID)
	return FallbackVariants(in)
}

// resolveAnchor returns the commit id and image bytes every variant edits
// against. Without a parent it generates and persists a fresh root commit
// from the base prompt.
func (s *Service) resolveAnchor(ctx context.Context, runID string, run *Run) (string, []byte, error) {
	if run.ParentCommitID != nil {
		parentID := *run.ParentCommitID
		commit, err := s.repo.GetCommit(parentID, run.ProjectID)
		if err != nil {
			return "", nil, err
		}
		ref := commit.FirstImagePath()
		if ref == "" {
			return "", nil, apperr.New(apperr.CodeCommitNotFound, http.StatusNotFound,
				"Commit '%s' is missing image artifacts.", parentID)
		}
		data, err := s.images.Get(ref)
		if err != nil {
			return "", nil, err
		}
		return parentID, data, nil
	}

	data, err := s.generateWithRetry(ctx, runID, "anchor", run.ImageModel, run.BasePrompt, run.Quality, nil)
	if err != nil {
		return "", nil, err
	}
	commitID, err := s.repo.ReserveCommitID()
	if err != nil {
		return "", nil, err
	}
	ref, err := s.images.Put(commitID, "img_01.png", data)
	if err != nil {
		return "", nil, err
	}
	if _, err := s.repo.CreateCommit(repo.CommitRecord{
		CommitID:   commitID,
		ProjectID:  run.ProjectID,
		Prompt:     run.BasePrompt,
		Model:      run.ImageModel,
		ImagePaths: []string{ref},
		Status:     repo.CommitStatusSuccess,
	}); err != nil {
		return "", nil, err
	}
	return commitID, data, nil
}

// generateWithRetry performs one generator call with a single retry on
// retryable upstream failures. A nil anchor means text-to-image.
func (s *Service) generateWithRetry(ctx context.Context, runID, key, model, prompt, quality string, anchor []byte) ([]byte, error) {
	call := func() ([]byte, error) {
		if anchor != nil {
			return s.gen.EditImage(ctx, model, prompt, quality, anchor)
		}
		return s.gen.TextToImage(ctx, model, prompt, quality)
	}
	data, err := call()
	if err == nil || !apperr.Retryable(err) {
		return data, err
	}
	delay := DelayForAttempt(1, s.backoff, retrySeed(runID, key, 1))
	if sleepErr := sleepWithContext(ctx, delay); sleepErr != nil {
		return nil, err
	}
	return call()
}

// generateVariants fans the variants out over a bounded worker pool and
// returns the generated image bytes indexed by variant position. A nil
// entry means generation failed for that variant.
func (s *Service) generateVariants(ctx context.Context, runID string, run *Run, variants []Variant, anchorID string, anchor []byte) [][]byte {
	results := make([][]byte, len(variants))

	jobs := make(chan int)
	workers := maxParallelVariants
	if len(variants) < workers {
		workers = len(variants)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.generateOne(ctx, runID, run, variants[i], anchorID, anchor)
			}
		}()
	}
	for i := range variants {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *Service) generateOne(ctx context.Context, runID string, run *Run, v Variant, anchorID string, anchor []byte) []byte {
	start := time.Now()
	data, err := s.generateWithRetry(ctx, runID, v.VariantID, run.ImageModel, v.VariantPrompt, run.Quality, anchor)
	if err == nil {
		var commitID, ref string
		commitID, err = s.repo.ReserveCommitID()
		if err == nil {
			ref, err = s.images.Put(commitID, "img_01.png", data)
		}
		if err == nil {
			_, err = s.repo.CreateCommit(repo.CommitRecord{
				CommitID:       commitID,
				ProjectID:      run.ProjectID,
				Prompt:         v.VariantPrompt,
				Model:          run.ImageModel,
				ParentCommitID: &anchorID,
				ImagePaths:     []string{ref},
				Status:         repo.CommitStatusSuccess,
			})
		}
		if err == nil {
			latency := time.Since(start).Milliseconds()
			if uerr := s.runs.UpdateVariant(runID, v.VariantID, func(out *Variant) {
				out.Status = VariantGenerated
				out.CommitID = &commitID
				out.ParentCommitID = &anchorID
				out.ImageURL = &ref
				out.GenerationLatencyMS = &latency
			}); uerr != nil {
				s.logger.Printf("eval run %s: variant %s: %v", runID, v.VariantID, uerr)
			}
			if perr := s.runs.AddProgress(runID, 1, 0, 0); perr != nil {
				s.logger.Printf("eval run %s: progress: %v", runID, perr)
			}
			return data
		}
	}

	s.markDegraded(runID)
	latency := time.Since(start).Milliseconds()
	commitMessage := fmt.Sprintf("%s: %v", apperr.CodeOpenAIUpstreamError, err)
	if ae, ok := apperr.As(err); ok {
		commitMessage = fmt.Sprintf("%s: %s", ae.Code, ae.Message)
	}
	variantMessage := err.Error()

	failedCommitID, cerr := s.repo.ReserveCommitID()
	if cerr == nil {
		if _, cerr = s.repo.CreateCommit(repo.CommitRecord{
			CommitID:       failedCommitID,
			ProjectID:      run.ProjectID,
			Prompt:         v.VariantPrompt,
			Model:          run.ImageModel,
			ParentCommitID: &anchorID,
			ImagePaths:     []string{},
			Status:         repo.CommitStatusFailed,
			Error:          &commitMessage,
		}); cerr != nil {
			s.logger.Printf("eval run %s: variant %s: persist failed commit: %v", runID, v.VariantID, cerr)
		}
	} else {
		s.logger.Printf("eval run %s: variant %s: reserve commit: %v", runID, v.VariantID, cerr)
	}

	if uerr := s.runs.UpdateVariant(runID, v.VariantID, func(out *Variant) {
		out.Status = VariantGenerationFailed
		if cerr == nil {
			out.CommitID = &failedCommitID
		}
		out.ParentCommitID = &anchorID
		out.GenerationLatencyMS = &latency
		out.Error = &variantMessage
	}); uerr != nil {
		s.logger.Printf("eval run %s: variant %s: %v", runID, v.VariantID, uerr)
	}
	if perr := s.runs.AddProgress(runID, 0, 0, 1); perr != nil {
		s.logger.Printf("eval run %s: progress: %v", runID, perr)
	}
	return nil
}

// evaluateVariants judges each generated image under a bounded worker
// pool. Every variant advances the evaluated counter exactly once so
// progress stays bounded by the variant total.
func (s *Service) evaluateVariants(ctx context.Context, runID string, run *Run, variants []Variant, imageBytes [][]byte) {
	jobs := make(chan int)
	workers := maxParallelVariants
	if len(variants) < workers {
		workers = len(variants)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s.evaluateOne(ctx, runID, run, variants[i], imageBytes[i])
			}
		}()
	}
	for i := range variants {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (s *Service) evaluateOne(ctx context.Context, runID string, run *Run, v Variant, image []byte) {
	if image == nil {
		if uerr := s.runs.UpdateVariant(runID, v.VariantID, func(out *Variant) {
			out.Status = VariantEvaluationSkipped
			out.Rationale = "Evaluation skipped because image generation failed."
			out.FailureTags = []string{"generation_failed"}
		}); uerr != nil {
			s.logger.Printf("eval run %s: variant %s: %v", runID, v.VariantID, uerr)
		}
		if perr := s.runs.AddProgress(runID, 0, 1, 0); perr != nil {
			s.logger.Printf("eval run %s: progress: %v", runID, perr)
		}
		return
	}

	start := time.Now()
	status := VariantEvaluated
	var rubric Rubric
	var err error
	if s.judge != nil {
		rubric, err = s.judge.Score(ctx, JudgeInput{
			BasePrompt:      run.BasePrompt,
			VariantPrompt:   v.VariantPrompt,
			ObjectivePreset: run.ObjectivePreset,
			Constraints:     run.Constraints,
			Image:           image,
		})
	}
	if s.judge == nil || err != nil {
		if err != nil {
			s.logger.Printf("eval run %s: variant %s: judge fallback: %v", runID, v.VariantID, err)
		}
		rubric = NeutralRubric()
		status = VariantEvaluatedDegraded
		s.markDegraded(runID)
	}
	latency := time.Since(start).Milliseconds()
	composite := CompositeScore(rubric)

	if uerr := s.runs.UpdateVariant(runID, v.VariantID, func(out *Variant) {
		out.Status = status
		out.JudgeLatencyMS = &latency
		out.PromptAdherence = rubric.PromptAdherence
		out.SubjectFidelity = rubric.SubjectFidelity
		out.CompositionQuality = rubric.CompositionQuality
		out.StyleCoherence = rubric.StyleCoherence
		out.TechnicalArtifactPenalty = rubric.TechnicalArtifactPenalty
		out.Confidence = rubric.Confidence
		out.StrengthTags = cloneStrings(rubric.StrengthTags)
		out.FailureTags = cloneStrings(rubric.FailureTags)
		out.Rationale = rubric.Rationale
		out.CompositeScore = composite
	}); uerr != nil {
		s.logger.Printf("eval run %s: variant %s: %v", runID, v.VariantID, uerr)
	}
	if perr := s.runs.AddProgress(runID, 0, 1, 0); perr != nil {
		s.logger.Printf("eval run %s: progress: %v", runID, perr)
	}
}

func (s *Service) refineSuggestions(ctx context.Context, runID string, in RefineInput) map[string]Suggestion {
	if s.refiner != nil {
		suggestions, err := s.refiner.Refine(ctx, in)
		if err == nil {
			return suggestions
		}
		s.logger.Printf("eval run %s: refiner fallback: %v", runID, err)
	}
	s.markDegraded(runID)
	return FallbackSuggestions(in)
}
