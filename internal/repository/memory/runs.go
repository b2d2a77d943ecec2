package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/smuacq/internal/repository"
	"github.com/RMahshie/smuacq/pkg/models"
)

// RunRepository keeps runs, results and exports for the life of the process
type RunRepository struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*models.Run
	results map[uuid.UUID]*models.RunResults
	exports map[uuid.UUID][]*models.Export
	now     func() time.Time
}

// NewRunRepository creates a new in-memory run repository
func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs:    make(map[uuid.UUID]*models.Run),
		results: make(map[uuid.UUID]*models.RunResults),
		exports: make(map[uuid.UUID][]*models.Export),
		now:     time.Now,
	}
}

var (
	_ repository.RunRepository    = (*RunRepository)(nil)
	_ repository.ExportRepository = (*RunRepository)(nil)
)

// Create inserts a new run record
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[id]; exists {
		return fmt.Errorf("run %s already exists", id)
	}
	stored := *run
	r.runs[id] = &stored
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	out := *run
	return &out, nil
}

// List returns every run, newest first
func (r *RunRepository) List(ctx context.Context) ([]*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]*models.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out := *run
		runs = append(runs, &out)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// UpdateStatus records the run status and the number of samples taken so far
func (r *RunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, samples int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	run.Status = status
	run.Samples = samples
	run.Progress = progress(samples, run.Planned)
	r.touch(run)
	return nil
}

// UpdateError records a final error status and message
func (r *RunRepository) UpdateError(ctx context.Context, id uuid.UUID, status string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	run.Status = status
	run.ErrorMsg = &errorMsg
	r.touch(run)
	return nil
}

// must be called with mu held
func (r *RunRepository) touch(run *models.Run) {
	now := r.now()
	run.UpdatedAt = now
	if run.Finished() && run.CompletedAt == nil {
		run.CompletedAt = &now
	}
}

// StoreResults stores the measurement table of a run
func (r *RunRepository) StoreResults(ctx context.Context, results *models.RunResults) error {
	id, err := uuid.Parse(results.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", results.RunID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	r.results[id] = results
	return nil
}

// GetResults retrieves the measurement table of a run
func (r *RunRepository) GetResults(ctx context.Context, runID uuid.UUID) (*models.RunResults, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[runID]
	if !ok {
		return nil, fmt.Errorf("results of run %s: %w", runID, repository.ErrNotFound)
	}
	return res, nil
}

// CreateExport records an uploaded export, replacing an earlier export of the same format
func (r *RunRepository) CreateExport(ctx context.Context, export *models.Export) error {
	id, err := uuid.Parse(export.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", export.RunID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	stored := *export
	for i, e := range r.exports[id] {
		if e.Format == export.Format {
			r.exports[id][i] = &stored
			return nil
		}
	}
	r.exports[id] = append(r.exports[id], &stored)
	return nil
}

// GetExport retrieves the export of a run in one format
func (r *RunRepository) GetExport(ctx context.Context, runID uuid.UUID, format string) (*models.Export, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.exports[runID] {
		if e.Format == format {
			out := *e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%s export of run %s: %w", format, runID, repository.ErrNotFound)
}

// DeleteExport removes the export record of a run in one format
func (r *RunRepository) DeleteExport(ctx context.Context, runID uuid.UUID, format string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exports := r.exports[runID]
	for i, e := range exports {
		if e.Format == format {
			r.exports[runID] = append(exports[:i:i], exports[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s export of run %s: %w", format, runID, repository.ErrNotFound)
}

// ListExports returns the exports of a run in order of first upload
func (r *RunRepository) ListExports(ctx context.Context, runID uuid.UUID) ([]*models.Export, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Export, 0, len(r.exports[runID]))
	for _, e := range r.exports[runID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func progress(samples, planned int) int {
	if planned <= 0 {
		return 0
	}
	p := samples * 100 / planned
	if p > 100 {
		p = 100
	}
	return p
}
