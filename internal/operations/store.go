package operations

import (
	"context"
	"sort"
	"sync"

	apperrors "aquaexport/internal/errors"
	"aquaexport/pkg/contracts/domain"
)

// RunStore persists export runs
type RunStore interface {
	Create(ctx context.Context, run *RunResult) error
	Get(ctx context.Context, id string) (*RunResult, error)
	Update(ctx context.Context, run *RunResult) error
	List(ctx context.Context, filter RunFilter) ([]*RunResult, error)
	Close() error
}

// RunFilter selects runs in List. Zero fields match everything.
type RunFilter struct {
	Mode   domain.Mode
	Status RunStatus
	Limit  int
}

func (f RunFilter) match(r *RunResult) bool {
	if f.Mode != 0 && r.Mode != f.Mode {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// apply orders runs newest first and cuts them to the limit.
func (f RunFilter) apply(runs []*RunResult) []*RunResult {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if f.Limit > 0 && len(runs) > f.Limit {
		runs = runs[:f.Limit]
	}
	return runs
}

func runNotFound(id string) error {
	return apperrors.NewNotFoundError("run "+id, apperrors.ErrRunNotFound)
}

// MemoryRunStore is an in-memory implementation of RunStore
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunResult
}

// NewMemoryRunStore creates a new in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*RunResult)}
}

// Create stores a new run
func (s *MemoryRunStore) Create(ctx context.Context, run *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return apperrors.NewStorageError("run "+run.ID+" already exists", nil)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// Get retrieves a copy of a run
func (s *MemoryRunStore) Get(ctx context.Context, id string) (*RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, runNotFound(id)
	}
	return run.Clone(), nil
}

// Update replaces a stored run
func (s *MemoryRunStore) Update(ctx context.Context, run *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return runNotFound(run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// List returns run summaries matching the filter, newest first
func (s *MemoryRunStore) List(ctx context.Context, filter RunFilter) ([]*RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunResult
	for _, run := range s.runs {
		if filter.match(run) {
			result = append(result, run.Summary())
		}
	}
	return filter.apply(result), nil
}

// Close is a no-op
func (s *MemoryRunStore) Close() error {
	return nil
}
