package server

import (
	"github.com/promptsmith/promptsmith/internal/eval"
	"github.com/promptsmith/promptsmith/internal/repo"
)

type upsertProjectRequest struct {
	ProjectID        string   `json:"project_id"`
	Name             *string  `json:"name"`
	CompareThreshold *float64 `json:"compare_threshold"`
}

type projectResponse struct {
	ProjectID              string   `json:"project_id"`
	Name                   string   `json:"name"`
	ActiveBaselineCommitID *string  `json:"active_baseline_commit_id"`
	CompareThreshold       *float64 `json:"compare_threshold,omitempty"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
}

type upsertProjectResponse struct {
	projectResponse
	Created bool `json:"created"`
}

type listProjectsResponse struct {
	Items []projectResponse `json:"items"`
}

type deleteProjectResponse struct {
	ProjectID           string `json:"project_id"`
	DeletedImageObjects int    `json:"deleted_image_objects"`
}

func toProjectResponse(p repo.ProjectRecord) projectResponse {
	return projectResponse{
		ProjectID:              p.ProjectID,
		Name:                   p.Name,
		ActiveBaselineCommitID: p.ActiveBaselineCommitID,
		CompareThreshold:       p.CompareThreshold,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

type generateRequest struct {
	ProjectID      string  `json:"project_id"`
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model"`
	Seed           *string `json:"seed"`
	ParentCommitID *string `json:"parent_commit_id"`
}

type generateResponse struct {
	CommitID       string   `json:"commit_id"`
	Status         string   `json:"status"`
	Prompt         string   `json:"prompt"`
	ParentCommitID *string  `json:"parent_commit_id"`
	ImagePaths     []string `json:"image_paths"`
	CreatedAt      string   `json:"created_at"`
}

type baselineRequest struct {
	ProjectID string `json:"project_id"`
	CommitID  string `json:"commit_id"`
}

type baselineResponse struct {
	ProjectID              string `json:"project_id"`
	ActiveBaselineCommitID string `json:"active_baseline_commit_id"`
	UpdatedAt              string `json:"updated_at"`
}

type historyItem struct {
	CommitID  string `json:"commit_id"`
	Prompt    string `json:"prompt"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type historyResponse struct {
	Items                  []historyItem `json:"items"`
	NextCursor             *string       `json:"next_cursor"`
	ActiveBaselineCommitID *string       `json:"active_baseline_commit_id"`
}

type compareRequest struct {
	ProjectID         string  `json:"project_id"`
	CandidateCommitID string  `json:"candidate_commit_id"`
	BaselineCommitID  *string `json:"baseline_commit_id"`
}

type compareScores struct {
	PixelDiffScore        float64 `json:"pixel_diff_score"`
	SemanticSimilarity    float64 `json:"semantic_similarity"`
	VisionStructuralScore float64 `json:"vision_structural_score"`
	DriftScore            float64 `json:"drift_score"`
	Threshold             float64 `json:"threshold"`
}

type compareArtifacts struct {
	DiffHeatmap string `json:"diff_heatmap"`
	Overlay     string `json:"overlay"`
}

type compareResponse struct {
	ReportID          string                 `json:"report_id"`
	BaselineCommitID  string                 `json:"baseline_commit_id"`
	CandidateCommitID string                 `json:"candidate_commit_id"`
	Scores            compareScores          `json:"scores"`
	Verdict           string                 `json:"verdict"`
	Degraded          bool                   `json:"degraded"`
	Explanation       repo.VisionExplanation `json:"explanation"`
	Artifacts         compareArtifacts       `json:"artifacts"`
}

func toCompareResponse(rec repo.ComparisonReportRecord) compareResponse {
	return compareResponse{
		ReportID:          rec.ReportID,
		BaselineCommitID:  rec.BaselineCommitID,
		CandidateCommitID: rec.CandidateCommitID,
		Scores: compareScores{
			PixelDiffScore:        rec.PixelDiffScore,
			SemanticSimilarity:    rec.SemanticSimilarity,
			VisionStructuralScore: rec.VisionStructuralScore,
			DriftScore:            rec.DriftScore,
			Threshold:             rec.Threshold,
		},
		Verdict:     rec.Verdict,
		Degraded:    rec.Degraded,
		Explanation: rec.Explanation,
		Artifacts: compareArtifacts{
			DiffHeatmap: rec.Artifacts["diff_heatmap"],
			Overlay:     rec.Artifacts["overlay"],
		},
	}
}

type createEvalRunRequest struct {
	ProjectID       string           `json:"project_id"`
	BasePrompt      string           `json:"base_prompt"`
	ObjectivePreset string           `json:"objective_preset"`
	ImageModel      string           `json:"image_model"`
	NVariants       int              `json:"n_variants"`
	Quality         string           `json:"quality"`
	ParentCommitID  *string          `json:"parent_commit_id"`
	Constraints     eval.Constraints `json:"constraints"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Projects int    `json:"projects"`
}
