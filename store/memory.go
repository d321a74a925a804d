package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"converter/errs"
	"converter/models"
)

// MemoryStore is the default job table for single-instance deployments.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ConversionJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.ConversionJob)}
}

func (s *MemoryStore) Create(ctx context.Context, job *models.ConversionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ConversionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, job *models.ConversionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if existing.Status != job.Status && !existing.Status.CanTransition(job.Status) {
		return fmt.Errorf("illegal status transition %s -> %s for job %s",
			existing.Status, job.Status, job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.ConversionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ConversionJob
	for _, job := range s.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
