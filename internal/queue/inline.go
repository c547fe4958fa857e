package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/model"
)

// Stages are the pipeline entry points an InlineDispatcher calls.
type Stages struct {
	Split      func(ctx context.Context, ev model.JobCreatedEvent) error
	Extract    func(ctx context.Context, msg model.PagesReadyMessage) error
	Synthesize func(ctx context.Context, ev model.ObjectCreatedEvent) error
}

// InlineDispatcher runs the next stage synchronously in the caller's
// goroutine. It backs local runs without Redis and the end-to-end tests.
// A stage records its own failure on the job, so stage errors are logged
// here and not handed back to the previous stage.
type InlineDispatcher struct {
	Stages Stages
	Log    zerolog.Logger
}

func (d *InlineDispatcher) JobCreated(ctx context.Context, ev model.JobCreatedEvent) error {
	if d.Stages.Split == nil {
		return fmt.Errorf("split stage not wired")
	}
	return d.report("split", d.Stages.Split(ctx, ev))
}

func (d *InlineDispatcher) PagesReady(ctx context.Context, msg model.PagesReadyMessage) error {
	if d.Stages.Extract == nil {
		return fmt.Errorf("extract stage not wired")
	}
	return d.report("extract", d.Stages.Extract(ctx, msg))
}

func (d *InlineDispatcher) TextReady(ctx context.Context, ev model.ObjectCreatedEvent) error {
	if d.Stages.Synthesize == nil {
		return fmt.Errorf("synthesize stage not wired")
	}
	return d.report("synthesize", d.Stages.Synthesize(ctx, ev))
}

func (d *InlineDispatcher) report(stage string, err error) error {
	if err != nil {
		d.Log.Error().Err(err).Str("stage", stage).Msg("inline stage failed")
	}
	return nil
}
