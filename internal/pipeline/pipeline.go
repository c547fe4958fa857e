// Package pipeline implements the three processing stages that turn an
// uploaded document into speech: split, extract and synthesize.
//
// Each stage is a stateless function of its input event plus the stored
// job. A stage only does its work when the job is in its input status,
// and every status write is a compare-and-swap through the job store. A
// redelivered event that finds the job in the stage's own output status
// re-sends the hand-off and nothing else.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/client"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/observability"
	"github.com/vocaldocs/api/internal/store"
)

var ErrForeignBucket = errors.New("event refers to a bucket this deployment does not own")

// ObjectStore is the artifact storage the stages read and write.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
}

type Rasterizer interface {
	Rasterize(ctx context.Context, path string, start, end int) ([]client.PageImage, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, png []byte) (string, error)
}

type Speaker interface {
	Synthesize(ctx context.Context, text, voiceID, languageCode string) ([]byte, error)
}

// Dispatcher hands work to the next stage. Implementations must tolerate
// being asked to dispatch the same hand-off twice.
type Dispatcher interface {
	JobCreated(ctx context.Context, ev model.JobCreatedEvent) error
	PagesReady(ctx context.Context, msg model.PagesReadyMessage) error
	TextReady(ctx context.Context, ev model.ObjectCreatedEvent) error
}

// Notifier is told about every status change a stage makes.
type Notifier interface {
	NotifyStatus(job *model.Job)
}

type nopNotifier struct{}

func (nopNotifier) NotifyStatus(*model.Job) {}

// storageAdapter narrows a client.StorageClient to ObjectStore.
type storageAdapter struct {
	client.StorageClient
}

// NewObjectStore adapts a storage client for use by the stages.
func NewObjectStore(c client.StorageClient) ObjectStore {
	return storageAdapter{c}
}

func (a storageAdapter) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.StorageClient.Upload(ctx, key, bytes.NewReader(body), contentType)
	return err
}

// stage carries what every stage needs to load and move a job.
type stage struct {
	name     string
	jobs     store.JobStore
	notifier Notifier
	log      zerolog.Logger
}

func newStage(name string, jobs store.JobStore, notifier Notifier, log zerolog.Logger) stage {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return stage{name: name, jobs: jobs, notifier: notifier, log: log}
}

func (s *stage) logger(ref string) zerolog.Logger {
	return observability.ForStage(s.log, s.name, ref)
}

// load fetches the job and reports whether it is in the stage's input
// status. Any other status means the work was done or abandoned already.
func (s *stage) load(ctx context.Context, ref string, want model.JobStatus, log zerolog.Logger) (*model.Job, bool, error) {
	job, err := s.jobs.Get(ctx, ref)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load job %s: %w", ref, err)
	}
	if job.Status != want {
		log.Info().Str("status", string(job.Status)).Msg("job not in input status, skipping")
		return job, false, nil
	}
	return job, true, nil
}

// advance applies t. A lost race is logged and reported as ok=false
// without an error; another invocation already moved the job on.
func (s *stage) advance(ctx context.Context, t model.Transition, log zerolog.Logger) (*model.Job, bool, error) {
	job, err := s.jobs.Transition(ctx, t)
	if errors.Is(err, store.ErrStatusConflict) {
		log.Warn().Err(err).Msg("status changed concurrently, dropping result")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to move job to %q: %w", t.To, err)
	}
	log.Info().Str("status", string(job.Status)).Msg("job status updated")
	s.notifier.NotifyStatus(job)
	return job, true, nil
}

// fail records cause on the job and returns it. The failure write is a CAS
// from the stage's input status, so it never overwrites a later status.
func (s *stage) fail(ctx context.Context, job *model.Job, to model.JobStatus, cause error, log zerolog.Logger) error {
	log.Error().Err(cause).Msg("stage failed")
	_, _, err := s.advance(ctx, model.Transition{
		ReferenceKey: job.ReferenceKey,
		From:         job.Status,
		To:           to,
		Error:        cause.Error(),
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to record failure status")
	}
	return cause
}

// finish maps the outcome of a stage body: nil passes through, a failed
// hand-off is returned as is, anything else marks the job failed.
func (s *stage) finish(ctx context.Context, job *model.Job, failStatus model.JobStatus, err error, log zerolog.Logger) error {
	if err == nil {
		return nil
	}
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		log.Error().Err(err).Msg("hand-off failed")
		return err
	}
	return s.fail(ctx, job, failStatus, err, log)
}

// dispatch runs after the status moved on, so a hand-off failure cannot be
// recorded as this stage's failure. It is returned for the substrate to
// retry or dead-letter.
func (s *stage) dispatch(send func() error) error {
	if err := send(); err != nil {
		return &DispatchError{Stage: s.name, Err: err}
	}
	return nil
}

// DispatchError reports a failed hand-off to the next stage.
type DispatchError struct {
	Stage string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: failed to dispatch next stage: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func checkBucket(storage ObjectStore, bucket string) error {
	if bucket != "" && bucket != storage.Bucket() {
		return fmt.Errorf("%w: %s", ErrForeignBucket, bucket)
	}
	return nil
}

// listPageImages returns the stored page images of ref in page order.
func listPageImages(ctx context.Context, storage ObjectStore, ref string) ([]string, error) {
	all, err := storage.List(ctx, model.ImagesPrefix(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to list page images: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, key := range all {
		if strings.HasSuffix(key, ".png") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
