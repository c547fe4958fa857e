package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocaldocs/api/internal/model"
)

const testRef = "8d3c6a52-6f0e-4c57-a3c9-0b8a4f0e2d11"

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestAsynqDispatcher_TaskTypesAndPayloads(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewAsynqDispatcher(enq)
	ctx := context.Background()

	require.NoError(t, d.JobCreated(ctx, model.JobCreatedEvent{ReferenceKey: testRef, InputType: model.InputPDF, StartPage: 1, EndPage: 3}))
	require.NoError(t, d.PagesReady(ctx, model.PagesReadyMessage{ReferenceKey: testRef, Bucket: "b", Images: []string{"images/x/page_0001.png"}}))
	require.NoError(t, d.TextReady(ctx, model.ObjectCreatedEvent{Bucket: "b", Key: model.TextKey(testRef)}))

	require.Len(t, enq.tasks, 3)
	assert.Equal(t, TaskTypeSplit, enq.tasks[0].Type())
	assert.Equal(t, TaskTypeExtract, enq.tasks[1].Type())
	assert.Equal(t, TaskTypeSynthesize, enq.tasks[2].Type())

	var ev model.JobCreatedEvent
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &ev))
	assert.Equal(t, testRef, ev.ReferenceKey)
	assert.Equal(t, 3, ev.EndPage)

	var obj model.ObjectCreatedEvent
	require.NoError(t, json.Unmarshal(enq.tasks[2].Payload(), &obj))
	assert.Equal(t, model.TextKey(testRef), obj.Key)
}

func TestAsynqDispatcher_DuplicateIsNotAnError(t *testing.T) {
	d := NewAsynqDispatcher(&fakeEnqueuer{err: asynq.ErrTaskIDConflict})
	assert.NoError(t, d.JobCreated(context.Background(), model.JobCreatedEvent{ReferenceKey: testRef}))
}

func TestAsynqDispatcher_EnqueueFailure(t *testing.T) {
	d := NewAsynqDispatcher(&fakeEnqueuer{err: errors.New("redis down")})
	err := d.PagesReady(context.Background(), model.PagesReadyMessage{ReferenceKey: testRef})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestAsynqDispatcher_RejectsNonTextKey(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewAsynqDispatcher(enq)
	err := d.TextReady(context.Background(), model.ObjectCreatedEvent{Bucket: "b", Key: "download/" + testRef + "/Audio.mp3"})
	assert.Error(t, err)
	assert.Empty(t, enq.tasks)
}

func TestTaskID(t *testing.T) {
	assert.Equal(t, "pipeline:split:"+testRef, TaskID(TaskTypeSplit, testRef))
	assert.NotEqual(t, TaskID(TaskTypeSplit, testRef), TaskID(TaskTypeExtract, testRef))
}

type fakePublisher struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSDispatcher_PublishesFanOutOnly(t *testing.T) {
	pub := &fakePublisher{}
	d := NewSNSDispatcher(pub, "arn:aws:sns:us-east-1:123456789012:tts-processing-topic")
	ctx := context.Background()

	require.NoError(t, d.JobCreated(ctx, model.JobCreatedEvent{ReferenceKey: testRef}))
	require.NoError(t, d.TextReady(ctx, model.ObjectCreatedEvent{Key: model.TextKey(testRef)}))
	assert.Empty(t, pub.inputs)

	msg := model.PagesReadyMessage{ReferenceKey: testRef, Bucket: "tts-bucket", Images: []string{model.PageImageKey(testRef, 1)}}
	require.NoError(t, d.PagesReady(ctx, msg))
	require.Len(t, pub.inputs, 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:tts-processing-topic", aws.ToString(pub.inputs[0].TopicArn))

	var got model.PagesReadyMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(pub.inputs[0].Message)), &got))
	assert.Equal(t, msg, got)
}

func TestSNSDispatcher_PublishFailure(t *testing.T) {
	d := NewSNSDispatcher(&fakePublisher{err: errors.New("throttled")}, "arn")
	assert.Error(t, d.PagesReady(context.Background(), model.PagesReadyMessage{ReferenceKey: testRef}))
}

func TestInlineDispatcher(t *testing.T) {
	var called []string
	d := &InlineDispatcher{Stages: Stages{
		Split: func(context.Context, model.JobCreatedEvent) error {
			called = append(called, "split")
			return nil
		},
		Synthesize: func(context.Context, model.ObjectCreatedEvent) error {
			called = append(called, "synthesize")
			return nil
		},
	}}
	ctx := context.Background()

	require.NoError(t, d.JobCreated(ctx, model.JobCreatedEvent{}))
	require.NoError(t, d.TextReady(ctx, model.ObjectCreatedEvent{}))
	assert.Error(t, d.PagesReady(ctx, model.PagesReadyMessage{}))
	assert.Equal(t, []string{"split", "synthesize"}, called)
}

func TestInlineDispatcher_StageErrorIsNotPropagated(t *testing.T) {
	d := &InlineDispatcher{Stages: Stages{
		Extract: func(context.Context, model.PagesReadyMessage) error {
			return errors.New("model timeout")
		},
	}}
	assert.NoError(t, d.PagesReady(context.Background(), model.PagesReadyMessage{ReferenceKey: testRef}))
}
