package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"videopipeline/internal/job"
)

// MemoryStore is an in-memory JobStore with the same claim semantics as
// the MySQL implementation. Used by tests and single-host local runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*job.Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c := *j
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = job.StatusProcessing
	}
	s.jobs[c.ID] = &c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *j
	return &c, nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, workerID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *job.Job
	for _, j := range s.jobs {
		if !j.Claimable() {
			continue
		}
		if oldest == nil || j.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.ProcessingLock = workerID
	oldest.ProcessingStartedAt = &now
	oldest.UpdatedAt = now
	c := *oldest
	return &c, nil
}

func (s *MemoryStore) MarkActive(_ context.Context, jobID string, renditions job.RenditionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	r720 := renditions[job.Label720]
	r1080 := renditions[job.Label1080]
	r2160 := renditions[job.Label2160]
	j.Status = job.StatusActive
	j.ProcessingLock = ""
	j.LastError = ""
	j.MP4720Path, j.MP4720URL = r720.Key, r720.URL
	j.MP41080Path, j.MP41080URL = r1080.Key, r1080.URL
	j.MP42160Path, j.MP42160URL = r2160.Key, r2160.URL
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Status = job.StatusFailed
	j.LastError = TruncateError(reason)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if j.Status != job.StatusFailed {
		return ErrNotRetryable
	}
	j.Status = job.StatusProcessing
	j.ProcessingLock = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		c := *j
		jobs = append(jobs, &c)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID > jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs, nil
}
