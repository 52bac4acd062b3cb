// Package memstore is an in-process state store used by tests that
// exercise the runner without a filesystem, grounded on the teacher's
// pkg/workflow/store.MemoryStore (thread-safe via sync.RWMutex, no
// external dependency). It satisfies the same store.Store contract as
// the SQLite backend, so runner tests can swap backends without
// changing assertions.
package memstore

import (
	"context"
	"sync"
	"time"

	afstore "github.com/aetherflow/aetherflow/internal/store"
)

type jobKey struct{ jobID, runID string }
type stepKey struct{ jobID, runID, stepID string }

type lockRow struct {
	owner     string
	expiresAt int64
}

// Store is an in-memory afstore.Store.
type Store struct {
	mu    sync.Mutex
	jobs  map[jobKey]afstore.JobStatus
	steps map[stepKey]afstore.StepStatus
	locks map[string]lockRow

	now func() int64
}

var _ afstore.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:  make(map[jobKey]afstore.JobStatus),
		steps: make(map[stepKey]afstore.StepStatus),
		locks: make(map[string]lockRow),
		now:   func() int64 { return time.Now().Unix() },
	}
}

// Close is a no-op; there is nothing to release.
func (s *Store) Close() error { return nil }

func (s *Store) GetJobStatus(_ context.Context, jobID, runID string) (afstore.JobStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.jobs[jobKey{jobID, runID}]
	return status, ok, nil
}

func (s *Store) SetJobStatus(_ context.Context, jobID, runID string, status afstore.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobKey{jobID, runID}] = status
	return nil
}

func (s *Store) GetStepStatus(_ context.Context, jobID, runID, stepID string) (afstore.StepStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.steps[stepKey{jobID, runID, stepID}]
	return status, ok, nil
}

func (s *Store) SetStepStatus(_ context.Context, jobID, runID, stepID string, status afstore.StepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[stepKey{jobID, runID, stepID}] = status
	return nil
}

func (s *Store) TryAcquireLock(_ context.Context, key, owner string, ttlSeconds int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if row, ok := s.locks[key]; ok && row.expiresAt > now && row.owner != owner {
		return false, nil
	}
	s.locks[key] = lockRow{owner: owner, expiresAt: now + int64(ttlSeconds)}
	return true, nil
}

func (s *Store) ReleaseLock(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.locks[key]; ok && row.owner == owner {
		delete(s.locks, key)
	}
	return nil
}
