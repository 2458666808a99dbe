package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// JobStore is an in-memory implementation of storage.JobStore and
// storage.JobClaimer. Jobs do not survive a restart.
type JobStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.ConfirmationJob
	leases map[string]time.Time // lease expiry by job id
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		data:   make(map[string]*domain.ConfirmationJob),
		leases: make(map[string]time.Time),
	}
}

// Save creates or replaces a job by ID.
func (s *JobStore) Save(_ context.Context, job *domain.ConfirmationJob) error {
	if job == nil || job.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *job
	s.data[job.ID] = &copy
	if job.State != domain.JobRunning {
		delete(s.leases, job.ID)
	}
	return nil
}

// Delete removes a job.
func (s *JobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	delete(s.leases, id)
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (*domain.ConfirmationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *j
	return &copy, nil
}

// Claim leases a stored job unless an unexpired lease exists.
func (s *JobStore) Claim(_ context.Context, id string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return false, nil
	}
	now := time.Now()
	if until, held := s.leases[id]; held && until.After(now) {
		return false, nil
	}
	s.leases[id] = now.Add(lease)
	return true, nil
}

// List returns all stored jobs ordered by not_before ASC.
func (s *JobStore) List(_ context.Context) ([]*domain.ConfirmationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ConfirmationJob, 0, len(s.data))
	for _, j := range s.data {
		copy := *j
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NotBefore.Before(result[j].NotBefore)
	})

	return result, nil
}

var (
	_ storage.JobStore   = (*JobStore)(nil)
	_ storage.JobClaimer = (*JobStore)(nil)
)
