package trigger

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
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

// Handler exposes one lambda entry point per stage. Every record of a batch
// is attempted; the joined error makes the platform redeliver the batch.
// Redelivered records re-send their hand-off at most; no stage repeats work.
type Handler struct {
	Splitter    splitStage
	Extractor   extractStage
	Synthesizer synthesizeStage
	Log         zerolog.Logger
}

func (h *Handler) HandleStream(ctx context.Context, ev events.DynamoDBEvent) error {
	created, err := JobCreatedFromStream(ev)
	if err != nil {
		h.Log.Error().Err(err).Msg("malformed stream record")
		return err
	}

	var errs []error
	for _, c := range created {
		errs = append(errs, h.Splitter.Run(ctx, c))
	}
	return errors.Join(errs...)
}

func (h *Handler) HandleTopic(ctx context.Context, ev events.SNSEvent) error {
	msgs, err := PagesReadyFromSNS(ev)
	if err != nil {
		h.Log.Error().Err(err).Msg("malformed fan-out message")
		return err
	}

	var errs []error
	for _, m := range msgs {
		errs = append(errs, h.Extractor.Run(ctx, m))
	}
	return errors.Join(errs...)
}

func (h *Handler) HandleBucket(ctx context.Context, ev events.S3Event) error {
	objects, err := ObjectsFromS3(ev)
	if err != nil {
		h.Log.Error().Err(err).Msg("malformed bucket notification")
		return err
	}

	var errs []error
	for _, o := range objects {
		errs = append(errs, h.Synthesizer.Run(ctx, o))
	}
	return errors.Join(errs...)
}
