// Package repo implements the JSON-table repository: projects, commits,
// comparison reports, and the config record with id counters. All tables
// live under a single data directory guarded by a file lock, and every
// mutation is persisted atomically before it becomes visible in memory.
package repo

// ProjectRecord is a named workspace owning a commit forest.
type ProjectRecord struct {
	ProjectID              string   `json:"project_id"`
	Name                   string   `json:"name"`
	ActiveBaselineCommitID *string  `json:"active_baseline_commit_id"`
	CompareThreshold       *float64 `json:"compare_threshold,omitempty"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
}

// Commit statuses.
const (
	CommitStatusSuccess = "success"
	CommitStatusFailed  = "failed"
)

// CommitRecord is one immutable node of the commit forest. A failed
// generation still produces a commit, with empty image paths and an error.
type CommitRecord struct {
	CommitID       string   `json:"commit_id"`
	ProjectID      string   `json:"project_id"`
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	Seed           *string  `json:"seed"`
	ParentCommitID *string  `json:"parent_commit_id"`
	ImagePaths     []string `json:"image_paths"`
	Status         string   `json:"status"`
	Error          *string  `json:"error"`
	CreatedAt      string   `json:"created_at"`
}

// FirstImagePath returns the commit's primary image reference, or "" when
// the commit has no image artifacts.
func (c CommitRecord) FirstImagePath() string {
	for _, p := range c.ImagePaths {
		if p != "" {
			return p
		}
	}
	return ""
}

// VisionExplanation is the structured explanation attached to a report.
type VisionExplanation struct {
	FacialStructureChanged bool   `json:"facial_structure_changed"`
	LightingShift          string `json:"lighting_shift"`
	StyleDrift             string `json:"style_drift"`
	Notes                  string `json:"notes"`
}

// ComparisonReportRecord is one persisted compare outcome.
type ComparisonReportRecord struct {
	ReportID              string            `json:"report_id"`
	ProjectID             string            `json:"project_id"`
	BaselineCommitID      string            `json:"baseline_commit_id"`
	CandidateCommitID     string            `json:"candidate_commit_id"`
	PixelDiffScore        float64           `json:"pixel_diff_score"`
	SemanticSimilarity    float64           `json:"semantic_similarity"`
	VisionStructuralScore float64           `json:"vision_structural_score"`
	DriftScore            float64           `json:"drift_score"`
	Threshold             float64           `json:"threshold"`
	Verdict               string            `json:"verdict"`
	Degraded              bool              `json:"degraded"`
	Explanation           VisionExplanation `json:"explanation"`
	Artifacts             map[string]string `json:"artifacts"`
	CreatedAt             string            `json:"created_at"`
}

// ConfigRecord carries scoring weights, the default drift threshold, and
// the monotonic id counters.
type ConfigRecord struct {
	Weights          map[string]float64 `json:"weights"`
	Threshold        float64            `json:"threshold"`
	ImageSize        string             `json:"image_size"`
	MaxDailyCompares int                `json:"max_daily_compares"`
	NextCommitNumber int                `json:"next_commit_number"`
	NextReportNumber int                `json:"next_report_number"`
}

func defaultConfig(threshold float64) ConfigRecord {
	return ConfigRecord{
		Weights: map[string]float64{
			"semantic": 0.40,
			"pixel":    0.30,
			"vision":   0.30,
		},
		Threshold:        threshold,
		ImageSize:        "1024x1024",
		MaxDailyCompares: 500,
		NextCommitNumber: 1,
		NextReportNumber: 1,
	}
}

// DeleteResult summarizes a subtree or project deletion.
type DeleteResult struct {
	ProjectID              string   `json:"project_id"`
	DeletedCommitIDs       []string `json:"deleted_commit_ids"`
	DeletedReportIDs       []string `json:"deleted_report_ids"`
	DeletedImageObjects    int      `json:"deleted_image_objects"`
	ActiveBaselineCommitID *string  `json:"active_baseline_commit_id"`
}
