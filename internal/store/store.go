package store

import (
	"context"
	"errors"

	"github.com/vocaldocs/api/internal/model"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrAlreadyExists  = errors.New("job already exists")
	ErrStatusConflict = errors.New("job status changed concurrently")
)

// JobStore persists job records. Transition is a compare-and-swap on the
// stored status and never moves a job along an illegal edge.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, referenceKey string) (*model.Job, error)
	ListByOwner(ctx context.Context, owner string) ([]model.Job, error)
	Transition(ctx context.Context, t model.Transition) (*model.Job, error)
}

// ProfileStore persists user profiles keyed by user id.
type ProfileStore interface {
	Put(ctx context.Context, p *model.Profile) error
	Get(ctx context.Context, userID string) (*model.Profile, error)
}

var ErrProfileNotFound = errors.New("profile not found")

func applyTransition(job *model.Job, t model.Transition) {
	job.Status = t.To
	if t.TextKey != "" {
		job.TextKey = t.TextKey
	}
	if t.AudioKey != "" {
		job.AudioKey = t.AudioKey
	}
	if t.Error != "" {
		job.Error = t.Error
	}
}
