package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/store"
)

var ErrNoImages = errors.New("no page images found")

// Extractor reads every page image of a job with the vision model and
// writes the concatenated text artifact.
type Extractor struct {
	stage
	storage     ObjectStore
	transcriber Transcriber
	dispatcher  Dispatcher
}

func NewExtractor(jobs store.JobStore, storage ObjectStore, transcriber Transcriber, dispatcher Dispatcher, notifier Notifier, log zerolog.Logger) *Extractor {
	return &Extractor{
		stage:       newStage("extract", jobs, notifier, log),
		storage:     storage,
		transcriber: transcriber,
		dispatcher:  dispatcher,
	}
}

// Run ignores msg.Images and lists the stored pages instead, so a partial
// fan-out message cannot drop pages.
func (e *Extractor) Run(ctx context.Context, msg model.PagesReadyMessage) error {
	log := e.logger(msg.ReferenceKey)

	if err := checkBucket(e.storage, msg.Bucket); err != nil {
		return err
	}

	job, ok, err := e.load(ctx, msg.ReferenceKey, model.StatusPagesReady, log)
	if err != nil {
		return err
	}
	if !ok {
		// Text already written: the TextReady hand-off may never have left.
		if job.Status == model.StatusTextReady {
			log.Info().Msg("re-sending text hand-off")
			return e.sendText(ctx, model.TextKey(job.ReferenceKey))
		}
		return nil
	}

	return e.finish(ctx, job, model.StatusExtractFailed, e.extract(ctx, job, log), log)
}

func (e *Extractor) extract(ctx context.Context, job *model.Job, log zerolog.Logger) error {
	keys, err := listPageImages(ctx, e.storage, job.ReferenceKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return ErrNoImages
	}

	var sb strings.Builder
	for i, key := range keys {
		png, err := e.storage.Download(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", key, err)
		}
		text, err := e.transcriber.Transcribe(ctx, png)
		if err != nil {
			return fmt.Errorf("failed to read page %d of %d: %w", i+1, len(keys), err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	log.Info().Int("pages", len(keys)).Int("chars", sb.Len()).Msg("pages transcribed")

	textKey := model.TextKey(job.ReferenceKey)
	if err := e.storage.Upload(ctx, textKey, []byte(sb.String()), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to write text artifact: %w", err)
	}

	_, ok, err := e.advance(ctx, model.Transition{
		ReferenceKey: job.ReferenceKey,
		From:         model.StatusPagesReady,
		To:           model.StatusTextReady,
		TextKey:      textKey,
	}, log)
	if err != nil || !ok {
		return err
	}

	return e.sendText(ctx, textKey)
}

func (e *Extractor) sendText(ctx context.Context, textKey string) error {
	return e.dispatch(func() error {
		return e.dispatcher.TextReady(ctx, model.ObjectCreatedEvent{Bucket: e.storage.Bucket(), Key: textKey})
	})
}
