package eval

import (
	"net/http"
	"sync"

	"github.com/promptsmith/promptsmith/internal/apperr"
	"github.com/promptsmith/promptsmith/internal/ids"
)

// RunStore holds the process-volatile run map. A single mutex guards it;
// every read and write crosses a deep copy so no caller ever shares state
// with the background pipeline.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
}

// NewRunStore creates an empty store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

// Put registers a run snapshot.
func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run.Clone()
}

// Get returns a snapshot of the run.
func (s *RunStore) Get(runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, apperr.New(apperr.CodeEvalRunNotFound, http.StatusNotFound,
			"Eval run '%s' was not found.", runID)
	}
	return run.Clone(), nil
}

// Update applies fn to the run under the lock and bumps updated_at.
func (s *RunStore) Update(runID string, fn func(*Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return apperr.New(apperr.CodeEvalRunNotFound, http.StatusNotFound,
			"Eval run '%s' was not found.", runID)
	}
	fn(run)
	run.UpdatedAt = ids.NowISO()
	return nil
}

// UpdateVariant applies fn to one variant of the run.
func (s *RunStore) UpdateVariant(runID, variantID string, fn func(*Variant)) error {
	return s.Update(runID, func(run *Run) {
		for i := range run.Variants {
			if run.Variants[i].VariantID == variantID {
				fn(&run.Variants[i])
				return
			}
		}
	})
}

// SetStage moves the run to a new stage, mirroring it into the status.
func (s *RunStore) SetStage(runID, stage string) error {
	return s.Update(runID, func(run *Run) {
		run.Stage = stage
		run.Status = stage
	})
}

// MarkDegraded latches the degraded flag. It never clears.
func (s *RunStore) MarkDegraded(runID string) error {
	return s.Update(runID, func(run *Run) {
		run.Degraded = true
	})
}

// AddProgress increments the progress counters.
func (s *RunStore) AddProgress(runID string, generated, evaluated, failed int) error {
	return s.Update(runID, func(run *Run) {
		run.Progress.GeneratedVariants += generated
		run.Progress.EvaluatedVariants += evaluated
		run.Progress.FailedVariants += failed
	})
}
