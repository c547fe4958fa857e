package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/model"
)

type splitStage interface {
	Run(ctx context.Context, ev model.JobCreatedEvent) error
}

type extractStage interface {
	Run(ctx context.Context, msg model.PagesReadyMessage) error
}

type synthesizeStage interface {
	Run(ctx context.Context, ev model.ObjectCreatedEvent) error
}

// PipelineWorker processes the pipeline tasks enqueued by the API and by
// the stages themselves.
type PipelineWorker struct {
	splitter    splitStage
	extractor   extractStage
	synthesizer synthesizeStage
	log         zerolog.Logger
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(splitter splitStage, extractor extractStage, synthesizer synthesizeStage, log zerolog.Logger) *PipelineWorker {
	return &PipelineWorker{
		splitter:    splitter,
		extractor:   extractor,
		synthesizer: synthesizer,
		log:         log.With().Str("component", "worker").Logger(),
	}
}

// ProcessSplit handles pipeline:split tasks
func (w *PipelineWorker) ProcessSplit(ctx context.Context, t *asynq.Task) error {
	var ev model.JobCreatedEvent
	if err := decode(t, &ev); err != nil {
		return err
	}
	w.log.Info().Str("reference_key", ev.ReferenceKey).Msg("split task received")
	return w.splitter.Run(ctx, ev)
}

// ProcessExtract handles pipeline:extract tasks
func (w *PipelineWorker) ProcessExtract(ctx context.Context, t *asynq.Task) error {
	var msg model.PagesReadyMessage
	if err := decode(t, &msg); err != nil {
		return err
	}
	w.log.Info().Str("reference_key", msg.ReferenceKey).Int("pages", len(msg.Images)).Msg("extract task received")
	return w.extractor.Run(ctx, msg)
}

// ProcessSynthesize handles pipeline:synthesize tasks
func (w *PipelineWorker) ProcessSynthesize(ctx context.Context, t *asynq.Task) error {
	var ev model.ObjectCreatedEvent
	if err := decode(t, &ev); err != nil {
		return err
	}
	w.log.Info().Str("key", ev.Key).Msg("synthesize task received")
	return w.synthesizer.Run(ctx, ev)
}

// A payload that cannot be decoded will never succeed, so it is not retried.
func decode(t *asynq.Task, v interface{}) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
