package repo

import (
	"sort"

	"github.com/promptsmith/promptsmith/internal/ids"
)

// DeleteCommitSubtree removes a commit and every descendant, along with any
// comparison report that references a deleted commit on either side and the
// image blobs of the deleted commits. The project's baseline is cleared
// when it falls inside the subtree. Deleting a commit that no longer
// exists is a no-op, so retried deletes converge.
func (r *Repository) DeleteCommitSubtree(projectID, commitID string) (DeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, err := r.findProject(projectID)
	if err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{
		ProjectID:              projectID,
		DeletedCommitIDs:       []string{},
		DeletedReportIDs:       []string{},
		ActiveBaselineCommitID: project.ActiveBaselineCommitID,
	}

	root, found := r.commitInProject(commitID, projectID)
	if !found {
		return result, nil
	}

	doomed := r.collectSubtree(root.CommitID, projectID)
	return r.deleteCommitSet(projectID, doomed, result)
}

// DeleteProject removes the project with all of its commits, reports, and
// blobs. Idempotent: a missing project deletes nothing.
func (r *Repository) DeleteProject(projectID string) (DeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := DeleteResult{
		ProjectID:        projectID,
		DeletedCommitIDs: []string{},
		DeletedReportIDs: []string{},
	}

	found := false
	projects := make([]ProjectRecord, 0, len(r.projects))
	for _, p := range r.projects {
		if p.ProjectID == projectID {
			found = true
			continue
		}
		projects = append(projects, p)
	}
	if !found {
		return result, nil
	}

	doomed := map[string]bool{}
	for _, c := range r.commits {
		if c.ProjectID == projectID {
			doomed[c.CommitID] = true
		}
	}

	result, err := r.deleteCommitSet(projectID, doomed, result)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := r.saveProjects(projects); err != nil {
		return DeleteResult{}, err
	}
	result.ActiveBaselineCommitID = nil
	return result, nil
}

func (r *Repository) commitInProject(commitID, projectID string) (CommitRecord, bool) {
	for _, c := range r.commits {
		if c.CommitID == commitID && c.ProjectID == projectID {
			return c, true
		}
	}
	return CommitRecord{}, false
}

// collectSubtree walks the forest breadth-first from rootID.
func (r *Repository) collectSubtree(rootID, projectID string) map[string]bool {
	doomed := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, c := range r.commits {
			if c.ProjectID != projectID || c.ParentCommitID == nil {
				continue
			}
			if *c.ParentCommitID == current && !doomed[c.CommitID] {
				doomed[c.CommitID] = true
				queue = append(queue, c.CommitID)
			}
		}
	}
	return doomed
}

func (r *Repository) deleteCommitSet(projectID string, doomed map[string]bool, result DeleteResult) (DeleteResult, error) {
	keptCommits := make([]CommitRecord, 0, len(r.commits))
	for _, c := range r.commits {
		if doomed[c.CommitID] {
			result.DeletedCommitIDs = append(result.DeletedCommitIDs, c.CommitID)
			continue
		}
		keptCommits = append(keptCommits, c)
	}

	keptReports := make([]ComparisonReportRecord, 0, len(r.reports))
	for _, rep := range r.reports {
		if doomed[rep.BaselineCommitID] || doomed[rep.CandidateCommitID] {
			result.DeletedReportIDs = append(result.DeletedReportIDs, rep.ReportID)
			continue
		}
		keptReports = append(keptReports, rep)
	}

	projects := cloneSlice(r.projects)
	for i := range projects {
		if projects[i].ProjectID != projectID {
			continue
		}
		baseline := projects[i].ActiveBaselineCommitID
		if baseline != nil && doomed[*baseline] {
			projects[i].ActiveBaselineCommitID = nil
			projects[i].UpdatedAt = ids.NowISO()
			result.ActiveBaselineCommitID = nil
		} else {
			result.ActiveBaselineCommitID = baseline
		}
	}

	if err := r.saveCommits(keptCommits); err != nil {
		return DeleteResult{}, err
	}
	if err := r.saveReports(keptReports); err != nil {
		return DeleteResult{}, err
	}
	if err := r.saveProjects(projects); err != nil {
		return DeleteResult{}, err
	}

	sortByIDNumber(result.DeletedCommitIDs, "c")
	sortByIDNumber(result.DeletedReportIDs, "r")

	// Blob cleanup runs only after the tables are durably updated.
	for _, commitID := range result.DeletedCommitIDs {
		n, err := r.images.DeleteTree(commitID)
		if err != nil {
			return DeleteResult{}, err
		}
		result.DeletedImageObjects += n
	}
	for _, reportID := range result.DeletedReportIDs {
		if _, err := r.artifacts.DeleteTree(reportID); err != nil {
			return DeleteResult{}, err
		}
	}
	return result, nil
}

func sortByIDNumber(items []string, prefix string) {
	sort.Slice(items, func(i, j int) bool {
		return ids.ParseIDNumber(items[i], prefix) < ids.ParseIDNumber(items[j], prefix)
	})
}
