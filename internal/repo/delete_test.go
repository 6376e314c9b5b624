package repo

import (
	"testing"

	"github.com/promptsmith/promptsmith/internal/store"
)

func putImage(t *testing.T, images *store.BlobStore, commitID string) string {
	t.Helper()
	ref, err := images.Put(commitID, "img_01.png", []byte("image for "+commitID))
	if err != nil {
		t.Fatalf("Put(%s): %v", commitID, err)
	}
	return ref
}

// Builds demo with the forest c0001 -> {c0002 -> c0004, c0003} plus the
// detached root c0005.
func seedForest(t *testing.T, r *Repository, images *store.BlobStore) []CommitRecord {
	t.Helper()
	if _, err := r.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	root := mustCommit(t, r, "demo", "", CommitStatusSuccess)
	childA := mustCommit(t, r, "demo", root.CommitID, CommitStatusSuccess)
	childB := mustCommit(t, r, "demo", root.CommitID, CommitStatusSuccess)
	grand := mustCommit(t, r, "demo", childA.CommitID, CommitStatusSuccess)
	other := mustCommit(t, r, "demo", "", CommitStatusSuccess)
	for _, c := range []CommitRecord{root, childA, childB, grand, other} {
		putImage(t, images, c.CommitID)
	}
	return []CommitRecord{root, childA, childB, grand, other}
}

func TestDeleteCommitSubtree(t *testing.T) {
	r, images, _ := openTestRepo(t)
	commits := seedForest(t, r, images)
	childA, grand, other := commits[1], commits[3], commits[4]

	result, err := r.DeleteCommitSubtree("demo", childA.CommitID)
	if err != nil {
		t.Fatalf("DeleteCommitSubtree: %v", err)
	}
	want := []string{childA.CommitID, grand.CommitID}
	if len(result.DeletedCommitIDs) != 2 || result.DeletedCommitIDs[0] != want[0] || result.DeletedCommitIDs[1] != want[1] {
		t.Fatalf("deleted commits = %v, want %v", result.DeletedCommitIDs, want)
	}
	if result.DeletedImageObjects != 2 {
		t.Fatalf("deleted image objects = %d, want 2", result.DeletedImageObjects)
	}
	for _, id := range want {
		if _, err := r.GetCommit(id, "demo"); err == nil {
			t.Fatalf("commit %s still present after delete", id)
		}
		if images.Exists(id + "/img_01.png") {
			t.Fatalf("image blob for %s survived delete", id)
		}
	}
	if _, err := r.GetCommit(other.CommitID, "demo"); err != nil {
		t.Fatalf("sibling tree damaged: %v", err)
	}
}

func TestDeleteCommitSubtreeClearsBaseline(t *testing.T) {
	r, images, _ := openTestRepo(t)
	commits := seedForest(t, r, images)
	root, grand := commits[0], commits[3]

	if _, err := r.SetBaseline("demo", grand.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	result, err := r.DeleteCommitSubtree("demo", root.CommitID)
	if err != nil {
		t.Fatalf("DeleteCommitSubtree: %v", err)
	}
	if result.ActiveBaselineCommitID != nil {
		t.Fatalf("baseline not cleared: %v", result.ActiveBaselineCommitID)
	}
	p, err := r.GetProject("demo")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.ActiveBaselineCommitID != nil {
		t.Fatalf("project baseline not cleared: %+v", p)
	}
}

func TestDeleteCommitSubtreeKeepsOutsideBaseline(t *testing.T) {
	r, images, _ := openTestRepo(t)
	commits := seedForest(t, r, images)
	childA, other := commits[1], commits[4]

	if _, err := r.SetBaseline("demo", other.CommitID); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	result, err := r.DeleteCommitSubtree("demo", childA.CommitID)
	if err != nil {
		t.Fatalf("DeleteCommitSubtree: %v", err)
	}
	if result.ActiveBaselineCommitID == nil || *result.ActiveBaselineCommitID != other.CommitID {
		t.Fatalf("outside baseline = %v, want %s", result.ActiveBaselineCommitID, other.CommitID)
	}
}

func TestDeleteCommitSubtreeCascadesReports(t *testing.T) {
	r, images, _ := openTestRepo(t)
	commits := seedForest(t, r, images)
	root, childB, other := commits[0], commits[2], commits[4]

	reportID, err := r.ReserveReportID()
	if err != nil {
		t.Fatalf("ReserveReportID: %v", err)
	}
	if _, err := r.CreateReport(ComparisonReportRecord{
		ReportID:          reportID,
		ProjectID:         "demo",
		BaselineCommitID:  root.CommitID,
		CandidateCommitID: other.CommitID,
		Verdict:           "pass",
	}); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	keptID, err := r.ReserveReportID()
	if err != nil {
		t.Fatalf("ReserveReportID: %v", err)
	}
	if _, err := r.CreateReport(ComparisonReportRecord{
		ReportID:          keptID,
		ProjectID:         "demo",
		BaselineCommitID:  other.CommitID,
		CandidateCommitID: other.CommitID,
		Verdict:           "pass",
	}); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	// Deleting childB leaves both reports; deleting root cascades the first.
	result, err := r.DeleteCommitSubtree("demo", childB.CommitID)
	if err != nil || len(result.DeletedReportIDs) != 0 {
		t.Fatalf("unrelated delete removed reports: %+v, %v", result, err)
	}
	result, err = r.DeleteCommitSubtree("demo", root.CommitID)
	if err != nil {
		t.Fatalf("DeleteCommitSubtree: %v", err)
	}
	if len(result.DeletedReportIDs) != 1 || result.DeletedReportIDs[0] != reportID {
		t.Fatalf("deleted reports = %v, want [%s]", result.DeletedReportIDs, reportID)
	}
}

func TestDeleteCommitSubtreeIdempotent(t *testing.T) {
	r, images, _ := openTestRepo(t)
	commits := seedForest(t, r, images)
	childA := commits[1]

	if _, err := r.DeleteCommitSubtree("demo", childA.CommitID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	result, err := r.DeleteCommitSubtree("demo", childA.CommitID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if len(result.DeletedCommitIDs) != 0 || result.DeletedImageObjects != 0 {
		t.Fatalf("repeat delete not a no-op: %+v", result)
	}
}

func TestDeleteProject(t *testing.T) {
	r, images, _ := openTestRepo(t)
	commits := seedForest(t, r, images)

	result, err := r.DeleteProject("demo")
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if len(result.DeletedCommitIDs) != len(commits) {
		t.Fatalf("deleted commits = %d, want %d", len(result.DeletedCommitIDs), len(commits))
	}
	if result.DeletedImageObjects != len(commits) {
		t.Fatalf("deleted image objects = %d, want %d", result.DeletedImageObjects, len(commits))
	}
	if _, err := r.GetProject("demo"); err == nil {
		t.Fatalf("project survived delete")
	}

	again, err := r.DeleteProject("demo")
	if err != nil || len(again.DeletedCommitIDs) != 0 {
		t.Fatalf("repeat project delete = (%+v, %v), want no-op", again, err)
	}
}
