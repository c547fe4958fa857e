package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vocaldocs/api/internal/model"
)

// MemoryStore keeps jobs in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]model.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ReferenceKey]; ok {
		return fmt.Errorf("create %s: %w", job.ReferenceKey, ErrAlreadyExists)
	}
	s.jobs[job.ReferenceKey] = *job
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, referenceKey string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[referenceKey]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", referenceKey, ErrNotFound)
	}
	return &job, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, owner string) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]model.Job, 0)
	for _, job := range s.jobs {
		if job.Owner == owner {
			jobs = append(jobs, job)
		}
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

func (s *MemoryStore) Transition(ctx context.Context, t model.Transition) (*model.Job, error) {
	if err := model.CheckTransition(t.From, t.To); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[t.ReferenceKey]
	if !ok {
		return nil, fmt.Errorf("transition %s: %w", t.ReferenceKey, ErrNotFound)
	}
	if job.Status != t.From {
		return nil, fmt.Errorf("transition %s from %q (stored %q): %w", t.ReferenceKey, t.From, job.Status, ErrStatusConflict)
	}

	applyTransition(&job, t)
	job.UpdatedAt = s.now().UTC()
	s.jobs[t.ReferenceKey] = job
	return &job, nil
}

func sortNewestFirst(jobs []model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].UploadDateTime.After(jobs[j].UploadDateTime)
	})
}

// MemoryProfileStore is the in-process ProfileStore.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]model.Profile)}
}

func (s *MemoryProfileStore) Put(ctx context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = *p
	return nil
}

func (s *MemoryProfileStore) Get(ctx context.Context, userID string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("get profile %s: %w", userID, ErrProfileNotFound)
	}
	return &p, nil
}
