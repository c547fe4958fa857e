package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vocaldocs/api/internal/model"
)

const (
	TaskTypeSplit      = "pipeline:split"
	TaskTypeExtract    = "pipeline:extract"
	TaskTypeSynthesize = "pipeline:synthesize"

	QueueName = "pipeline"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher hands stages to each other through asynq tasks. The task
// id is derived from the stage and job, so a repeated hand-off collapses
// into the task already queued.
type AsynqDispatcher struct {
	client    Enqueuer
	retention time.Duration
}

func NewAsynqDispatcher(client Enqueuer) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:    client,
		retention: 24 * time.Hour,
	}
}

func (d *AsynqDispatcher) JobCreated(ctx context.Context, ev model.JobCreatedEvent) error {
	return d.enqueue(ctx, TaskTypeSplit, ev.ReferenceKey, ev)
}

func (d *AsynqDispatcher) PagesReady(ctx context.Context, msg model.PagesReadyMessage) error {
	return d.enqueue(ctx, TaskTypeExtract, msg.ReferenceKey, msg)
}

func (d *AsynqDispatcher) TextReady(ctx context.Context, ev model.ObjectCreatedEvent) error {
	ref, ok := model.ReferenceKeyFromTextKey(ev.Key)
	if !ok {
		return fmt.Errorf("not a text artifact key: %s", ev.Key)
	}
	return d.enqueue(ctx, TaskTypeSynthesize, ref, ev)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, taskType, ref string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}

	// Failed stages are already recorded on the job, so tasks go
	// straight to the archive instead of retrying.
	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.TaskID(TaskID(taskType, ref)),
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.Retention(d.retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

// TaskID is the idempotency key of one stage of one job.
func TaskID(taskType, ref string) string {
	return taskType + ":" + ref
}
