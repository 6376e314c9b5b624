package repo

import (
	"testing"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/store"
)

func openTestRepo(t *testing.T) (*Repository, *store.BlobStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	images := store.NewBlobStore(t.TempDir())
	artifacts := store.NewBlobStore(t.TempDir())
	r, err := Open(dataDir, images, artifacts, 0.30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, images, dataDir
}

func mustCommit(t *testing.T, r *Repository, projectID, parentID string, status string) CommitRecord {
	t.Helper()
	id, err := r.ReserveCommitID()
	if err != nil {
		t.Fatalf("ReserveCommitID: %v", err)
	}
	rec := CommitRecord{
		CommitID:  id,
		ProjectID: projectID,
		Prompt:    "prompt for " + id,
		Model:     "test-model",
		Status:    status,
	}
	if parentID != "" {
		rec.ParentCommitID = &parentID
	}
	if status == CommitStatusSuccess {
		rec.ImagePaths = []string{id + "/img_01.png"}
	} else {
		msg := "OPENAI_UPSTREAM_ERROR: upstream failed"
		rec.Error = &msg
	}
	created, err := r.CreateCommit(rec)
	if err != nil {
		t.Fatalf("CreateCommit(%s): %v", id, err)
	}
	return created
}

func TestUpsertProjectCreateAndUpdate(t *testing.T) {
	r, _, _ := openTestRepo(t)

	p, created, err := r.UpsertProject("demo", "Demo", nil)
	if err != nil || !created {
		t.Fatalf("first upsert = (%+v, %v, %v), want created", p, created, err)
	}
	if p.Name != "Demo" || p.ActiveBaselineCommitID != nil {
		t.Fatalf("unexpected project: %+v", p)
	}

	threshold := 0.5
	p, created, err = r.UpsertProject("demo", "", &threshold)
	if err != nil || created {
		t.Fatalf("second upsert = (%v, %v), want update", created, err)
	}
	if p.Name != "Demo" || p.CompareThreshold == nil || *p.CompareThreshold != 0.5 {
		t.Fatalf("update did not stick: %+v", p)
	}
	if got := r.ThresholdFor("demo"); got != 0.5 {
		t.Fatalf("ThresholdFor = %v, want project override 0.5", got)
	}
	if got := r.ThresholdFor("other"); got != 0.30 {
		t.Fatalf("ThresholdFor unknown project = %v, want default 0.30", got)
	}
}

func TestEnsureProjectDefaultsNameToID(t *testing.T) {
	r, _, _ := openTestRepo(t)
	p, err := r.EnsureProject("demo")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if p.Name != "demo" {
		t.Fatalf("name = %q, want project id", p.Name)
	}
	again, err := r.EnsureProject("demo")
	if err != nil || again.CreatedAt != p.CreatedAt {
		t.Fatalf("EnsureProject must be idempotent: %+v, %v", again, err)
	}
}

func TestReserveIDsMonotonic(t *testing.T) {
	r, _, _ := openTestRepo(t)
	for i, want := range []string{"c0001", "c0002", "c0003"} {
		got, err := r.ReserveCommitID()
		if err != nil || got != want {
			t.Fatalf("commit id %d = (%q, %v), want %q", i, got, err, want)
		}
	}
	got, err := r.ReserveReportID()
	if err != nil || got != "r0001" {
		t.Fatalf("report id = (%q, %v), want r0001", got, err)
	}
}

func TestCreateCommitValidation(t *testing.T) {
	r, _, _ := openTestRepo(t)

	_, err := r.CreateCommit(CommitRecord{CommitID: "c0001", ProjectID: "ghost", Status: CommitStatusSuccess})
	if !apperr.IsCode(err, apperr.CodeProjectNotFound) {
		t.Fatalf("unknown project err = %v", err)
	}

	if _, err := r.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	root := mustCommit(t, r, "demo", "", CommitStatusSuccess)

	_, err = r.CreateCommit(CommitRecord{CommitID: root.CommitID, ProjectID: "demo", Status: CommitStatusSuccess})
	if !apperr.IsCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("duplicate id err = %v", err)
	}

	ghost := "c9999"
	_, err = r.CreateCommit(CommitRecord{CommitID: "c0099", ProjectID: "demo", ParentCommitID: &ghost, Status: CommitStatusSuccess})
	if !apperr.IsCode(err, apperr.CodeCommitNotFound) {
		t.Fatalf("missing parent err = %v", err)
	}
}

func TestGetCommitScopedToProject(t *testing.T) {
	r, _, _ := openTestRepo(t)
	if _, err := r.EnsureProject("alpha"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if _, err := r.EnsureProject("beta"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	c := mustCommit(t, r, "alpha", "", CommitStatusSuccess)

	if _, err := r.GetCommit(c.CommitID, "alpha"); err != nil {
		t.Fatalf("same-project lookup: %v", err)
	}
	_, err := r.GetCommit(c.CommitID, "beta")
	if !apperr.IsCode(err, apperr.CodeCommitNotFound) {
		t.Fatalf("cross-project lookup err = %v, want COMMIT_NOT_FOUND", err)
	}
}

func TestSetBaseline(t *testing.T) {
	r, _, _ := openTestRepo(t)
	if _, err := r.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	good := mustCommit(t, r, "demo", "", CommitStatusSuccess)
	bad := mustCommit(t, r, "demo", "", CommitStatusFailed)

	p, err := r.SetBaseline("demo", good.CommitID)
	if err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	if p.ActiveBaselineCommitID == nil || *p.ActiveBaselineCommitID != good.CommitID {
		t.Fatalf("baseline = %v, want %s", p.ActiveBaselineCommitID, good.CommitID)
	}

	_, err = r.SetBaseline("demo", bad.CommitID)
	if !apperr.IsCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("failed-commit baseline err = %v, want INVALID_REQUEST", err)
	}
	_, err = r.SetBaseline("demo", "c9999")
	if !apperr.IsCode(err, apperr.CodeCommitNotFound) {
		t.Fatalf("missing-commit baseline err = %v", err)
	}
}

func TestListHistoryPagination(t *testing.T) {
	r, _, _ := openTestRepo(t)
	if _, err := r.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	var all []string
	for i := 0; i < 5; i++ {
		c := mustCommit(t, r, "demo", "", CommitStatusSuccess)
		all = append(all, c.CommitID)
	}

	page, next, err := r.ListHistory("demo", 2, "")
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(page) != 2 || page[0].CommitID != all[4] || page[1].CommitID != all[3] {
		t.Fatalf("first page = %+v, want newest first", page)
	}
	if next == nil || *next != all[3] {
		t.Fatalf("next cursor = %v, want %s", next, all[3])
	}

	page, next, err = r.ListHistory("demo", 2, *next)
	if err != nil || len(page) != 2 || page[0].CommitID != all[2] {
		t.Fatalf("second page = (%+v, %v)", page, err)
	}

	page, next, err = r.ListHistory("demo", 2, *next)
	if err != nil || len(page) != 1 || next != nil {
		t.Fatalf("last page = (%+v, %v, %v), want single item and nil cursor", page, next, err)
	}
}

func TestListHistoryEdgeCases(t *testing.T) {
	r, _, _ := openTestRepo(t)
	if _, err := r.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	mustCommit(t, r, "demo", "", CommitStatusSuccess)

	// Unknown cursor returns an empty page, not the first page again.
	page, next, err := r.ListHistory("demo", 10, "c9999")
	if err != nil || len(page) != 0 || next != nil {
		t.Fatalf("unknown cursor = (%+v, %v, %v)", page, next, err)
	}

	_, _, err = r.ListHistory("demo", MaxHistoryLimit+1, "")
	if !apperr.IsCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("over-limit err = %v", err)
	}

	_, _, err = r.ListHistory("ghost", 10, "")
	if !apperr.IsCode(err, apperr.CodeProjectNotFound) {
		t.Fatalf("unknown project err = %v", err)
	}
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	images := store.NewBlobStore(t.TempDir())
	artifacts := store.NewBlobStore(t.TempDir())

	r, err := Open(dataDir, images, artifacts, 0.30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	c := mustCommit(t, r, "demo", "", CommitStatusSuccess)
	if _, err := r.SetBaseline("demo", c.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dataDir, images, artifacts, 0.30)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	p, err := reopened.GetProject("demo")
	if err != nil {
		t.Fatalf("GetProject after reopen: %v", err)
	}
	if p.ActiveBaselineCommitID == nil || *p.ActiveBaselineCommitID != c.CommitID {
		t.Fatalf("baseline lost across reopen: %+v", p)
	}
	if _, err := reopened.GetCommit(c.CommitID, "demo"); err != nil {
		t.Fatalf("commit lost across reopen: %v", err)
	}
	next, err := reopened.ReserveCommitID()
	if err != nil || next != "c0002" {
		t.Fatalf("id counter after reopen = (%q, %v), want c0002", next, err)
	}
}
