package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/store"
)

// Splitter turns a freshly uploaded job into page images (PDF) or
// directly into the text artifact (TEXT).
type Splitter struct {
	stage
	storage    ObjectStore
	rasterizer Rasterizer
	dispatcher Dispatcher
	tempDir    string
}

func NewSplitter(jobs store.JobStore, storage ObjectStore, rasterizer Rasterizer, dispatcher Dispatcher, notifier Notifier, log zerolog.Logger) *Splitter {
	return &Splitter{
		stage:      newStage("split", jobs, notifier, log),
		storage:    storage,
		rasterizer: rasterizer,
		dispatcher: dispatcher,
	}
}

// WithTempDir sets where downloaded PDFs are staged. Defaults to os.TempDir.
func (s *Splitter) WithTempDir(dir string) *Splitter {
	s.tempDir = dir
	return s
}

func (s *Splitter) Run(ctx context.Context, ev model.JobCreatedEvent) error {
	log := s.logger(ev.ReferenceKey)

	job, ok, err := s.load(ctx, ev.ReferenceKey, model.StatusUploadCompleted, log)
	if err != nil {
		return err
	}
	if !ok {
		return s.resend(ctx, job, log)
	}

	switch job.InputType {
	case model.InputText:
		err = s.passThrough(ctx, job, log)
	case model.InputPDF:
		err = s.rasterize(ctx, job, log)
	default:
		err = fmt.Errorf("unknown input type %q", job.InputType)
	}
	return s.finish(ctx, job, model.StatusSplitFailed, err, log)
}

func (s *Splitter) passThrough(ctx context.Context, job *model.Job, log zerolog.Logger) error {
	textKey := model.TextKey(job.ReferenceKey)
	if err := s.storage.Copy(ctx, model.SourceKey(job.ReferenceKey, ""), textKey); err != nil {
		return fmt.Errorf("failed to write text artifact: %w", err)
	}

	_, ok, err := s.advance(ctx, model.Transition{
		ReferenceKey: job.ReferenceKey,
		From:         model.StatusUploadCompleted,
		To:           model.StatusTextReady,
		TextKey:      textKey,
	}, log)
	if err != nil || !ok {
		return err
	}

	return s.sendText(ctx, textKey)
}

func (s *Splitter) rasterize(ctx context.Context, job *model.Job, log zerolog.Logger) error {
	pdf, err := s.storage.Download(ctx, model.SourceKey(job.ReferenceKey, job.FileName))
	if err != nil {
		return fmt.Errorf("failed to fetch source document: %w", err)
	}

	tmp, err := os.CreateTemp(s.tempDir, "split-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(pdf)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to stage source document: %w", err)
	}

	pages, err := s.rasterizer.Rasterize(ctx, tmp.Name(), job.StartPage, job.EndPage)
	if err != nil {
		return fmt.Errorf("failed to rasterize pages %d-%d: %w", job.StartPage, job.EndPage, err)
	}

	images := make([]string, 0, len(pages))
	for _, page := range pages {
		key := model.PageImageKey(job.ReferenceKey, page.Number)
		if err := s.storage.Upload(ctx, key, page.PNG, "image/png"); err != nil {
			return fmt.Errorf("failed to store page %d: %w", page.Number, err)
		}
		images = append(images, key)
	}
	log.Info().Int("pages", len(images)).Msg("pages rasterized")

	_, ok, err := s.advance(ctx, model.Transition{
		ReferenceKey: job.ReferenceKey,
		From:         model.StatusUploadCompleted,
		To:           model.StatusPagesReady,
	}, log)
	if err != nil || !ok {
		return err
	}

	return s.sendPages(ctx, job.ReferenceKey, images)
}

// resend repeats the hand-off for a job this stage already moved on. The
// event is only redelivered when that hand-off failed, and the status
// alone cannot tell whether the next stage ever heard of the job.
func (s *Splitter) resend(ctx context.Context, job *model.Job, log zerolog.Logger) error {
	switch {
	case job.InputType == model.InputText && job.Status == model.StatusTextReady:
		log.Info().Msg("re-sending text hand-off")
		return s.sendText(ctx, model.TextKey(job.ReferenceKey))
	case job.InputType == model.InputPDF && job.Status == model.StatusPagesReady:
		images, err := listPageImages(ctx, s.storage, job.ReferenceKey)
		if err != nil {
			return err
		}
		log.Info().Int("pages", len(images)).Msg("re-sending pages hand-off")
		return s.sendPages(ctx, job.ReferenceKey, images)
	}
	return nil
}

func (s *Splitter) sendText(ctx context.Context, textKey string) error {
	return s.dispatch(func() error {
		return s.dispatcher.TextReady(ctx, model.ObjectCreatedEvent{Bucket: s.storage.Bucket(), Key: textKey})
	})
}

func (s *Splitter) sendPages(ctx context.Context, ref string, images []string) error {
	return s.dispatch(func() error {
		return s.dispatcher.PagesReady(ctx, model.PagesReadyMessage{
			ReferenceKey: ref,
			Bucket:       s.storage.Bucket(),
			Images:       images,
		})
	})
}
