package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trustos/internal/verification/models"
	"trustos/pkg/platform/sentinel"
)

// InMemoryStore keeps job records in a map, deep-copied on every way in and
// out. Records are not shared across processes, so polling must reach the
// instance that accepted the job.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.JobRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]*models.JobRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, rec *models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[rec.ID]; exists {
		return fmt.Errorf("job %s: %w", rec.ID, sentinel.ErrConflict)
	}
	s.jobs[rec.ID] = rec.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, id string, fn func(rec *models.JobRecord) error) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, sentinel.ErrNotFound)
	}
	rec := stored.Clone()
	if err := fn(rec); err != nil {
		return nil, err
	}
	s.jobs[id] = rec.Clone()
	return rec, nil
}

func (s *InMemoryStore) DeleteSubmittedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.jobs {
		if rec.SubmittedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Len is the number of stored records, swept or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
