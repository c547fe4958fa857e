package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/vocaldocs/api/internal/model"
)

// Publisher is satisfied by *sns.Client.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSDispatcher is used when stages run as platform functions. Only the
// page fan-out is published; job creation reaches the splitter through the
// table stream and the text artifact reaches the synthesizer through the
// bucket notification.
type SNSDispatcher struct {
	client   Publisher
	topicArn string
}

func NewSNSDispatcher(client Publisher, topicArn string) *SNSDispatcher {
	return &SNSDispatcher{client: client, topicArn: topicArn}
}

func (d *SNSDispatcher) JobCreated(context.Context, model.JobCreatedEvent) error {
	return nil
}

func (d *SNSDispatcher) PagesReady(ctx context.Context, msg model.PagesReadyMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal fan-out message: %w", err)
	}

	_, err = d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(d.topicArn),
		Message:  aws.String(string(body)),
		Subject:  aws.String("pages-ready"),
	})
	if err != nil {
		return fmt.Errorf("failed to publish fan-out for %s: %w", msg.ReferenceKey, err)
	}
	return nil
}

func (d *SNSDispatcher) TextReady(context.Context, model.ObjectCreatedEvent) error {
	return nil
}
