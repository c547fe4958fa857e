// Package trigger adapts platform events (table stream, topic, bucket
// notification) to pipeline stage inputs.
package trigger

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/vocaldocs/api/internal/model"
)

const eventInsert = "INSERT"

// JobCreatedFromStream extracts the job-created events from a table stream
// batch. Only inserts start the pipeline; status updates are ignored.
func JobCreatedFromStream(ev events.DynamoDBEvent) ([]model.JobCreatedEvent, error) {
	var out []model.JobCreatedEvent
	for _, rec := range ev.Records {
		if rec.EventName != eventInsert {
			continue
		}
		created, err := jobCreatedFromImage(rec.Change.NewImage)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.EventID, err)
		}
		out = append(out, created)
	}
	return out, nil
}

func jobCreatedFromImage(img map[string]events.DynamoDBAttributeValue) (model.JobCreatedEvent, error) {
	var ev model.JobCreatedEvent
	var err error

	if ev.ReferenceKey, err = stringAttr(img, "reference_key", true); err != nil {
		return ev, err
	}
	kind, err := stringAttr(img, "InputType", true)
	if err != nil {
		return ev, err
	}
	ev.InputType = model.InputKind(kind)
	if ev.S3Path, err = stringAttr(img, "S3Path", false); err != nil {
		return ev, err
	}
	if ev.StartPage, err = intAttr(img, "StartPage"); err != nil {
		return ev, err
	}
	if ev.EndPage, err = intAttr(img, "EndPage"); err != nil {
		return ev, err
	}
	return ev, nil
}

func stringAttr(img map[string]events.DynamoDBAttributeValue, name string, required bool) (string, error) {
	av, ok := img[name]
	if !ok || av.IsNull() {
		if required {
			return "", fmt.Errorf("missing attribute %s", name)
		}
		return "", nil
	}
	if av.DataType() != events.DataTypeString {
		return "", fmt.Errorf("attribute %s is not a string", name)
	}
	return av.String(), nil
}

func intAttr(img map[string]events.DynamoDBAttributeValue, name string) (int, error) {
	av, ok := img[name]
	if !ok || av.IsNull() {
		return 0, nil
	}
	// Older records store page numbers as strings.
	if av.DataType() == events.DataTypeString {
		n, err := strconv.Atoi(av.String())
		if err != nil {
			return 0, fmt.Errorf("attribute %s: %w", name, err)
		}
		return n, nil
	}
	if av.DataType() != events.DataTypeNumber {
		return 0, fmt.Errorf("attribute %s is not a number", name)
	}
	n, err := av.Integer()
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return int(n), nil
}

// PagesReadyFromSNS decodes the fan-out messages of a topic delivery.
func PagesReadyFromSNS(ev events.SNSEvent) ([]model.PagesReadyMessage, error) {
	out := make([]model.PagesReadyMessage, 0, len(ev.Records))
	for _, rec := range ev.Records {
		var msg model.PagesReadyMessage
		if err := json.Unmarshal([]byte(rec.SNS.Message), &msg); err != nil {
			return nil, fmt.Errorf("message %s: %w", rec.SNS.MessageID, err)
		}
		if msg.ReferenceKey == "" {
			return nil, fmt.Errorf("message %s: missing reference_key", rec.SNS.MessageID)
		}
		out = append(out, msg)
	}
	return out, nil
}

// ObjectsFromS3 lists the created objects of a bucket notification with
// their keys URL-decoded.
func ObjectsFromS3(ev events.S3Event) ([]model.ObjectCreatedEvent, error) {
	out := make([]model.ObjectCreatedEvent, 0, len(ev.Records))
	for _, rec := range ev.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", rec.S3.Object.Key, err)
		}
		out = append(out, model.ObjectCreatedEvent{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
		})
	}
	return out, nil
}
