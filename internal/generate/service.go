package generate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/repo"
	"github.com/promptsmith/promptsmith/internal/store"
)

// Params describes one generation request.
type Params struct {
	ProjectID      string
	Prompt         string
	Model          string
	Quality        string
	Seed           *string
	ParentCommitID *string
}

// Service creates image commits. Every attempt produces a commit: failed
// generations persist a failed commit carrying the error.
type Service struct {
	repo         *repo.Repository
	images       *store.BlobStore
	gen          ImageGenerator
	defaultModel string
	logger       *log.Logger
}

// NewService wires the generation service.
func NewService(r *repo.Repository, images *store.BlobStore, gen ImageGenerator, defaultModel string, logger *log.Logger) *Service {
	return &Service{repo: r, images: images, gen: gen, defaultModel: defaultModel, logger: logger}
}

// Generator exposes the underlying image generator for the eval pipeline.
func (s *Service) Generator() ImageGenerator { return s.gen }

// Generate resolves the parent, renders the image, stores the blob, and
// records the commit. An explicit parent must exist; without one the
// newest commit in the project (if any) becomes the parent.
func (s *Service) Generate(ctx context.Context, p Params) (repo.CommitRecord, error) {
	if _, err := s.repo.EnsureProject(p.ProjectID); err != nil {
		return repo.CommitRecord{}, err
	}

	parent, err := s.resolveParent(p.ProjectID, p.ParentCommitID)
	if err != nil {
		return repo.CommitRecord{}, err
	}
	var parentID *string
	if parent != nil {
		parentID = &parent.CommitID
	}

	commitID, err := s.repo.ReserveCommitID()
	if err != nil {
		return repo.CommitRecord{}, err
	}

	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = s.defaultModel
	}
	effectivePrompt := withParentContext(p.Prompt, parent)

	// Seed is recorded on the commit only; the upstream API has no stable
	// seed field.
	imageBytes, genErr := s.gen.TextToImage(ctx, model, effectivePrompt, p.Quality)
	if genErr != nil {
		message := genErr.Error()
		if ae, ok := apperr.As(genErr); ok {
			message = fmt.Sprintf("%s: %s", ae.Code, ae.Message)
		}
		if _, err := s.repo.CreateCommit(repo.CommitRecord{
			CommitID:       commitID,
			ProjectID:      p.ProjectID,
			Prompt:         p.Prompt,
			Model:          model,
			Seed:           p.Seed,
			ParentCommitID: parentID,
			ImagePaths:     []string{},
			Status:         repo.CommitStatusFailed,
			Error:          &message,
		}); err != nil {
			s.logger.Printf("generate %s: failed to persist failed commit: %v", commitID, err)
		}
		return repo.CommitRecord{}, genErr
	}

	imageRef, err := s.images.Put(commitID, "img_01.png", imageBytes)
	if err != nil {
		return repo.CommitRecord{}, err
	}
	return s.repo.CreateCommit(repo.CommitRecord{
		CommitID:       commitID,
		ProjectID:      p.ProjectID,
		Prompt:         p.Prompt,
		Model:          model,
		Seed:           p.Seed,
		ParentCommitID: parentID,
		ImagePaths:     []string{imageRef},
		Status:         repo.CommitStatusSuccess,
	})
}

func (s *Service) resolveParent(projectID string, parentCommitID *string) (*repo.CommitRecord, error) {
	if parentCommitID != nil && *parentCommitID != "" {
		commit, err := s.repo.GetCommit(*parentCommitID, projectID)
		if err != nil {
			return nil, err
		}
		return &commit, nil
	}
	head, _, err := s.repo.ListHistory(projectID, 1, "")
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return nil, nil
	}
	return &head[0], nil
}

// withParentContext threads lineage into the prompt so successive commits
// keep subject identity unless the new prompt overrides it.
func withParentContext(prompt string, parent *repo.CommitRecord) string {
	if parent == nil {
		return prompt
	}
	return strings.Join([]string{
		"Generate the next iteration in this prompt lineage.",
		"Previous commit id: " + parent.CommitID,
		"Previous commit prompt: " + strings.TrimSpace(parent.Prompt),
		"New prompt update: " + prompt,
		"Keep subject identity and core scene continuity from the previous commit unless the new prompt explicitly changes them.",
	}, "\n")
}
