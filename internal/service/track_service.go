package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/vocaldocs/api/internal/client"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/store"
)

// ErrAccessDenied covers both a missing job and a job owned by someone
// else, so callers cannot probe for other users' reference keys.
var ErrAccessDenied = errors.New("access denied")

const (
	previewRunes   = 100
	downloadExpiry = 3600 * time.Second
)

// TrackService answers status and delivery requests.
type TrackService struct {
	jobs    store.JobStore
	storage client.StorageClient
}

func NewTrackService(jobs store.JobStore, storage client.StorageClient) *TrackService {
	return &TrackService{jobs: jobs, storage: storage}
}

// List returns the caller's jobs, newest first.
func (s *TrackService) List(ctx context.Context, owner string) (*model.TrackListResponse, error) {
	jobs, err := s.jobs.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	resp := &model.TrackListResponse{Requests: make([]model.JobSummary, 0, len(jobs))}
	for i := range jobs {
		resp.Requests = append(resp.Requests, Summarize(&jobs[i]))
	}
	return resp, nil
}

// Get returns one of the caller's jobs.
func (s *TrackService) Get(ctx context.Context, owner, ref string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Owner != owner {
		return nil, ErrAccessDenied
	}
	return job, nil
}

// PresignDownload signs a time-limited URL for the job's audio. It does not
// check that the audio exists yet.
func (s *TrackService) PresignDownload(ctx context.Context, owner, ref string) (*model.DownloadResponse, error) {
	if _, err := s.Get(ctx, owner, ref); err != nil {
		return nil, err
	}

	url, err := s.storage.GetSignedURL(ctx, model.AudioKey(ref), downloadExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download url: %w", err)
	}
	return &model.DownloadResponse{PresignedURL: url}, nil
}

// Summarize builds the list entry for a job. PDF jobs show their file name;
// TEXT jobs a preview of the text.
func Summarize(job *model.Job) model.JobSummary {
	sum := model.JobSummary{
		ReferenceKey:   job.ReferenceKey,
		TaskStatus:     job.Status,
		UploadDateTime: job.UploadDateTime,
		InputType:      job.InputType,
		Language:       job.Language,
		Error:          job.Error,
	}
	if job.InputType == model.InputPDF {
		sum.FileName = job.FileName
	} else {
		sum.Text = preview(job.Text)
	}
	return sum
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}
