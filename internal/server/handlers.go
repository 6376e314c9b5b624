package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/promptsmith/promptsmith/internal/compare"
	"github.com/promptsmith/promptsmith/internal/eval"
	"github.com/promptsmith/promptsmith/internal/generate"
	"github.com/promptsmith/promptsmith/internal/repo"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Projects: len(s.repo.ListProjects()),
	})
}

func (s *Server) handleUpsertProject(w http.ResponseWriter, r *http.Request) {
	var req upsertProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, r, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeInvalidRequest(w, r, "project_id is required")
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	project, created, err := s.repo.UpsertProject(req.ProjectID, name, req.CompareThreshold)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertProjectResponse{
		projectResponse: toProjectResponse(project),
		Created:         created,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.repo.ListProjects()
	items := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, listProjectsResponse{Items: items})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	result, err := s.repo.DeleteProject(projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteProjectResponse{
		ProjectID:           result.ProjectID,
		DeletedImageObjects: result.DeletedImageObjects,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, r, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeInvalidRequest(w, r, "project_id is required")
		return
	}
	if len(strings.TrimSpace(req.Prompt)) < 5 {
		writeInvalidRequest(w, r, "prompt must be at least 5 characters")
		return
	}
	commit, err := s.generator.Generate(r.Context(), generate.Params{
		ProjectID:      req.ProjectID,
		Prompt:         req.Prompt,
		Model:          req.Model,
		Quality:        "medium",
		Seed:           req.Seed,
		ParentCommitID: req.ParentCommitID,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		CommitID:       commit.CommitID,
		Status:         commit.Status,
		Prompt:         commit.Prompt,
		ParentCommitID: commit.ParentCommitID,
		ImagePaths:     commit.ImagePaths,
		CreatedAt:      commit.CreatedAt,
	})
}

func (s *Server) handleSetBaseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, r, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.CommitID) == "" {
		writeInvalidRequest(w, r, "project_id and commit_id are required")
		return
	}
	if _, err := s.repo.EnsureProject(req.ProjectID); err != nil {
		writeAppError(w, r, err)
		return
	}
	project, err := s.repo.SetBaseline(req.ProjectID, req.CommitID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	active := ""
	if project.ActiveBaselineCommitID != nil {
		active = *project.ActiveBaselineCommitID
	}
	writeJSON(w, http.StatusOK, baselineResponse{
		ProjectID:              project.ProjectID,
		ActiveBaselineCommitID: active,
		UpdatedAt:              project.UpdatedAt,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeInvalidRequest(w, r, "project_id is required")
		return
	}
	limit := repo.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeInvalidRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	cursor := r.URL.Query().Get("cursor")

	project, err := s.repo.GetProject(projectID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	commits, nextCursor, err := s.repo.ListHistory(projectID, limit, cursor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items := make([]historyItem, 0, len(commits))
	for _, c := range commits {
		items = append(items, historyItem{
			CommitID:  c.CommitID,
			Prompt:    c.Prompt,
			Status:    c.Status,
			CreatedAt: c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Items:                  items,
		NextCursor:             nextCursor,
		ActiveBaselineCommitID: project.ActiveBaselineCommitID,
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, r, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.CandidateCommitID) == "" {
		writeInvalidRequest(w, r, "project_id and candidate_commit_id are required")
		return
	}
	report, err := s.comparer.Compare(r.Context(), compare.Request{
		ProjectID:         req.ProjectID,
		CandidateCommitID: req.CandidateCommitID,
		BaselineCommitID:  req.BaselineCommitID,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompareResponse(report))
}

func (s *Server) handleDeleteCommit(w http.ResponseWriter, r *http.Request) {
	commitID := r.PathValue("id")
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeInvalidRequest(w, r, "project_id is required")
		return
	}
	result, err := s.repo.DeleteCommitSubtree(projectID, commitID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateEvalRun(w http.ResponseWriter, r *http.Request) {
	var req createEvalRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, r, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeInvalidRequest(w, r, "project_id is required")
		return
	}
	if req.NVariants == 0 {
		req.NVariants = 2
	}
	run, err := s.evaluator.CreateRun(eval.CreateRunParams{
		ProjectID:       req.ProjectID,
		BasePrompt:      req.BasePrompt,
		ObjectivePreset: req.ObjectivePreset,
		ImageModel:      req.ImageModel,
		NVariants:       req.NVariants,
		Quality:         req.Quality,
		Constraints:     req.Constraints,
		ParentCommitID:  req.ParentCommitID,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetEvalRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.evaluator.GetRun(r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
