package repo

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/ids"
	"github.com/promptsmith/promptsmith/internal/store"
)

// collection is the on-disk envelope for every table file.
type collection[T any] struct {
	Items []T `json:"items"`
}

// Repository is the single source of truth for projects, commits, and
// comparison reports. A single mutex serializes mutations; each mutation
// persists the affected table atomically before updating memory, so a
// failed write leaves the previous state intact.
type Repository struct {
	mu        sync.Mutex
	dataDir   string
	images    *store.BlobStore
	artifacts *store.BlobStore
	lock      *flock.Flock

	projects []ProjectRecord
	commits  []CommitRecord
	reports  []ComparisonReportRecord
	config   ConfigRecord
}

// Open loads the tables under dataDir, bootstrapping empty ones, and takes
// an exclusive file lock so a second process cannot corrupt the tables.
func Open(dataDir string, images, artifacts *store.BlobStore, defaultThreshold float64) (*Repository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to create data directory %s: %v", dataDir, err)
	}
	r := &Repository{
		dataDir:   dataDir,
		images:    images,
		artifacts: artifacts,
		lock:      flock.New(filepath.Join(dataDir, ".promptsmith.lock")),
	}

	locked, err := r.lock.TryLock()
	if err != nil {
		return nil, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to lock data directory: %v", err)
	}
	if !locked {
		return nil, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"data directory %s is locked by another process", dataDir)
	}

	if err := r.bootstrap(defaultThreshold); err != nil {
		r.lock.Unlock()
		return nil, err
	}
	return r, nil
}

// Close releases the data directory lock.
func (r *Repository) Close() error {
	return r.lock.Unlock()
}

func (r *Repository) path(name string) string {
	return filepath.Join(r.dataDir, name)
}

func (r *Repository) bootstrap(defaultThreshold float64) error {
	var projects collection[ProjectRecord]
	if _, err := store.ReadJSONFile(r.path("projects.json"), &projects); err != nil {
		return err
	}
	var commits collection[CommitRecord]
	if _, err := store.ReadJSONFile(r.path("commits.json"), &commits); err != nil {
		return err
	}
	var reports collection[ComparisonReportRecord]
	if _, err := store.ReadJSONFile(r.path("comparisons.json"), &reports); err != nil {
		return err
	}
	cfg := defaultConfig(defaultThreshold)
	found, err := store.ReadJSONFile(r.path("config.json"), &cfg)
	if err != nil {
		return err
	}
	if !found {
		if err := store.WriteJSONAtomic(r.path("config.json"), cfg); err != nil {
			return err
		}
	}

	r.projects = projects.Items
	r.commits = commits.Items
	r.reports = reports.Items
	r.config = cfg
	return nil
}

func (r *Repository) saveProjects(items []ProjectRecord) error {
	if err := store.WriteJSONAtomic(r.path("projects.json"), collection[ProjectRecord]{Items: items}); err != nil {
		return err
	}
	r.projects = items
	return nil
}

func (r *Repository) saveCommits(items []CommitRecord) error {
	if err := store.WriteJSONAtomic(r.path("commits.json"), collection[CommitRecord]{Items: items}); err != nil {
		return err
	}
	r.commits = items
	return nil
}

func (r *Repository) saveReports(items []ComparisonReportRecord) error {
	if err := store.WriteJSONAtomic(r.path("comparisons.json"), collection[ComparisonReportRecord]{Items: items}); err != nil {
		return err
	}
	r.reports = items
	return nil
}

func (r *Repository) saveConfig(cfg ConfigRecord) error {
	if err := store.WriteJSONAtomic(r.path("config.json"), cfg); err != nil {
		return err
	}
	r.config = cfg
	return nil
}

// ReserveCommitID allocates the next commit id (c0001, c0002, ...).
func (r *Repository) ReserveCommitID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.config
	id := ids.FormatID("c", cfg.NextCommitNumber)
	cfg.NextCommitNumber++
	if err := r.saveConfig(cfg); err != nil {
		return "", err
	}
	return id, nil
}

// ReserveReportID allocates the next report id (r0001, r0002, ...).
func (r *Repository) ReserveReportID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.config
	id := ids.FormatID("r", cfg.NextReportNumber)
	cfg.NextReportNumber++
	if err := r.saveConfig(cfg); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertProject creates the project or updates its mutable fields.
// Returns the record and whether it was newly created.
func (r *Repository) UpsertProject(projectID, name string, threshold *float64) (ProjectRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := cloneSlice(r.projects)
	for i := range items {
		if items[i].ProjectID != projectID {
			continue
		}
		changed := false
		if name != "" && name != items[i].Name {
			items[i].Name = name
			changed = true
		}
		if threshold != nil {
			items[i].CompareThreshold = threshold
			changed = true
		}
		if changed {
			items[i].UpdatedAt = ids.NowISO()
			if err := r.saveProjects(items); err != nil {
				return ProjectRecord{}, false, err
			}
		}
		return items[i], false, nil
	}

	now := ids.NowISO()
	if name == "" {
		name = projectID
	}
	project := ProjectRecord{
		ProjectID:        projectID,
		Name:             name,
		CompareThreshold: threshold,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	items = append(items, project)
	if err := r.saveProjects(items); err != nil {
		return ProjectRecord{}, false, err
	}
	return project, true, nil
}

// EnsureProject creates the project with defaults when missing.
func (r *Repository) EnsureProject(projectID string) (ProjectRecord, error) {
	project, _, err := r.UpsertProject(projectID, "", nil)
	return project, err
}

// GetProject looks up a project by id.
func (r *Repository) GetProject(projectID string) (ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findProject(projectID)
}

func (r *Repository) findProject(projectID string) (ProjectRecord, error) {
	for _, p := range r.projects {
		if p.ProjectID == projectID {
			return p, nil
		}
	}
	return ProjectRecord{}, apperr.New(apperr.CodeProjectNotFound, http.StatusNotFound,
		"Project '%s' was not found.", projectID)
}

// ListProjects returns all projects, most recently updated first.
func (r *Repository) ListProjects() []ProjectRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := cloneSlice(r.projects)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt > items[j].UpdatedAt
	})
	return items
}

// CreateCommit appends an immutable commit. The parent, when set, must
// already exist in the same project: the forest is append-only and never
// reparented.
func (r *Repository) CreateCommit(c CommitRecord) (CommitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.findProject(c.ProjectID); err != nil {
		return CommitRecord{}, err
	}
	for _, existing := range r.commits {
		if existing.CommitID == c.CommitID {
			return CommitRecord{}, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
				"Commit '%s' already exists.", c.CommitID)
		}
	}
	if c.ParentCommitID != nil {
		if _, err := r.findCommit(*c.ParentCommitID, c.ProjectID); err != nil {
			return CommitRecord{}, err
		}
	}
	if c.ImagePaths == nil {
		c.ImagePaths = []string{}
	}
	c.CreatedAt = ids.NowISO()

	items := append(cloneSlice(r.commits), c)
	if err := r.saveCommits(items); err != nil {
		return CommitRecord{}, err
	}
	return c, nil
}

// GetCommit looks up a commit, optionally scoped to a project. A commit in
// a different project is reported as not found, never leaked.
func (r *Repository) GetCommit(commitID, projectID string) (CommitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findCommit(commitID, projectID)
}

func (r *Repository) findCommit(commitID, projectID string) (CommitRecord, error) {
	for _, c := range r.commits {
		if c.CommitID != commitID {
			continue
		}
		if projectID != "" && c.ProjectID != projectID {
			return CommitRecord{}, apperr.New(apperr.CodeCommitNotFound, http.StatusNotFound,
				"Commit '%s' was not found in project '%s'.", commitID, projectID)
		}
		return c, nil
	}
	return CommitRecord{}, apperr.New(apperr.CodeCommitNotFound, http.StatusNotFound,
		"Commit '%s' was not found.", commitID)
}

// SetBaseline marks a successful commit as the project's active baseline.
func (r *Repository) SetBaseline(projectID, commitID string) (ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.findProject(projectID); err != nil {
		return ProjectRecord{}, err
	}
	commit, err := r.findCommit(commitID, projectID)
	if err != nil {
		return ProjectRecord{}, err
	}
	if commit.Status != CommitStatusSuccess {
		return ProjectRecord{}, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
			"Commit '%s' is not a successful generation.", commitID)
	}

	items := cloneSlice(r.projects)
	var updated ProjectRecord
	for i := range items {
		if items[i].ProjectID == projectID {
			items[i].ActiveBaselineCommitID = &commitID
			items[i].UpdatedAt = ids.NowISO()
			updated = items[i]
		}
	}
	if err := r.saveProjects(items); err != nil {
		return ProjectRecord{}, err
	}
	return updated, nil
}

// DefaultHistoryLimit is applied when the caller does not specify one.
const DefaultHistoryLimit = 20

// MaxHistoryLimit is the hard page-size ceiling.
const MaxHistoryLimit = 50

// ListHistory pages a project's commits newest-first by the numeric id
// component. The cursor is the last commit id of the previous page; an
// unknown cursor yields an empty page rather than restarting.
func (r *Repository) ListHistory(projectID string, limit int, cursor string) ([]CommitRecord, *string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.findProject(projectID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return nil, nil, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest,
			"History limit must be at most %d.", MaxHistoryLimit)
	}

	var commits []CommitRecord
	for _, c := range r.commits {
		if c.ProjectID == projectID {
			commits = append(commits, c)
		}
	}
	sort.SliceStable(commits, func(i, j int) bool {
		return ids.ParseIDNumber(commits[i].CommitID, "c") > ids.ParseIDNumber(commits[j].CommitID, "c")
	})

	start := 0
	if cursor != "" {
		start = len(commits)
		for i, c := range commits {
			if c.CommitID == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(commits) {
		return []CommitRecord{}, nil, nil
	}

	end := start + limit
	if end > len(commits) {
		end = len(commits)
	}
	page := cloneSlice(commits[start:end])
	var next *string
	if end < len(commits) && len(page) > 0 {
		last := page[len(page)-1].CommitID
		next = &last
	}
	return page, next, nil
}

// CreateReport appends a comparison report.
func (r *Repository) CreateReport(rec ComparisonReportRecord) (ComparisonReportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.CreatedAt = ids.NowISO()
	if rec.Artifacts == nil {
		rec.Artifacts = map[string]string{}
	}
	items := append(cloneSlice(r.reports), rec)
	if err := r.saveReports(items); err != nil {
		return ComparisonReportRecord{}, err
	}
	return rec, nil
}

// ThresholdFor resolves the drift threshold: the project's override when
// set, otherwise the config default.
func (r *Repository) ThresholdFor(projectID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.ProjectID == projectID && p.CompareThreshold != nil {
			return *p.CompareThreshold
		}
	}
	return r.config.Threshold
}

// Config returns a copy of the config record.
func (r *Repository) Config() ConfigRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.config
	cfg.Weights = make(map[string]float64, len(r.config.Weights))
	for k, v := range r.config.Weights {
		cfg.Weights[k] = v
	}
	return cfg
}

func cloneSlice[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
