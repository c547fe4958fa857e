package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vocaldocs/api/internal/model"
)

const (
	attrReferenceKey = "reference_key"
	attrOwner        = "Username"
	attrStatus       = "TaskStatus"
	attrTextKey      = "TextKey"
	attrAudioKey     = "AudioKey"
	attrError        = "ErrorMessage"
	attrUpdatedAt    = "UpdatedAt"
	attrStartPage    = "StartPage"
	attrEndPage      = "EndPage"
)

// DynamoAPI is the subset of the DynamoDB client the stores use.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements JobStore on a DynamoDB table keyed by reference_key.
type DynamoStore struct {
	db         DynamoAPI
	table      string
	ownerIndex string
	now        func() time.Time
}

// NewDynamoStore creates a store on table. When ownerIndex is empty,
// ListByOwner falls back to a filtered scan.
func NewDynamoStore(db DynamoAPI, table, ownerIndex string) *DynamoStore {
	return &DynamoStore{
		db:         db,
		table:      table,
		ownerIndex: ownerIndex,
		now:        time.Now,
	}
}

func (s *DynamoStore) Create(ctx context.Context, job *model.Job) error {
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name(attrReferenceKey))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("create %s: %w", job.ReferenceKey, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to put job: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, referenceKey string) (*model.Job, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            jobKey(referenceKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("get %s: %w", referenceKey, ErrNotFound)
	}

	return unmarshalJob(out.Item)
}

func (s *DynamoStore) ListByOwner(ctx context.Context, owner string) ([]model.Job, error) {
	var items []map[string]types.AttributeValue
	var err error
	if s.ownerIndex != "" {
		items, err = s.queryOwner(ctx, owner)
	} else {
		items, err = s.scanOwner(ctx, owner)
	}
	if err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(items))
	for _, item := range items {
		job, err := unmarshalJob(item)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

func (s *DynamoStore) queryOwner(ctx context.Context, owner string) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key(attrOwner).Equal(expression.Value(owner))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.ownerIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query jobs by owner: %w", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (s *DynamoStore) scanOwner(ctx context.Context, owner string) ([]map[string]types.AttributeValue, error) {
	filter := expression.Name(attrOwner).Equal(expression.Value(owner))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan jobs: %w", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (s *DynamoStore) Transition(ctx context.Context, t model.Transition) (*model.Job, error) {
	if err := model.CheckTransition(t.From, t.To); err != nil {
		return nil, err
	}

	update := expression.Set(expression.Name(attrStatus), expression.Value(t.To)).
		Set(expression.Name(attrUpdatedAt), expression.Value(s.now().UTC().Format(time.RFC3339Nano)))
	if t.TextKey != "" {
		update = update.Set(expression.Name(attrTextKey), expression.Value(t.TextKey))
	}
	if t.AudioKey != "" {
		update = update.Set(expression.Name(attrAudioKey), expression.Value(t.AudioKey))
	}
	if t.Error != "" {
		update = update.Set(expression.Name(attrError), expression.Value(t.Error))
	}
	cond := expression.Name(attrStatus).Equal(expression.Value(t.From))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	out, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       jobKey(t.ReferenceKey),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, s.conflictCause(ctx, t)
		}
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	return unmarshalJob(out.Attributes)
}

// conflictCause tells a missing record apart from a lost race. UpdateItem
// would otherwise upsert, so the status condition also guards existence.
func (s *DynamoStore) conflictCause(ctx context.Context, t model.Transition) error {
	current, err := s.Get(ctx, t.ReferenceKey)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("transition %s: %w", t.ReferenceKey, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("transition %s from %q: %w", t.ReferenceKey, t.From, ErrStatusConflict)
	}
	return fmt.Errorf("transition %s from %q (stored %q): %w", t.ReferenceKey, t.From, current.Status, ErrStatusConflict)
}

// unmarshalJob decodes a job item. Older records hold the page range as
// strings; those are read as numbers, and a blank one as absent.
func unmarshalJob(item map[string]types.AttributeValue) (*model.Job, error) {
	for _, name := range []string{attrStartPage, attrEndPage} {
		sv, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if v := strings.TrimSpace(sv.Value); v == "" {
			delete(item, name)
		} else {
			item[name] = &types.AttributeValueMemberN{Value: v}
		}
	}

	var job model.Job
	if err := attributevalue.UnmarshalMap(item, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func jobKey(referenceKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrReferenceKey: &types.AttributeValueMemberS{Value: referenceKey},
	}
}

// DynamoProfileStore implements ProfileStore on a table keyed by user_id.
type DynamoProfileStore struct {
	db    DynamoAPI
	table string
}

func NewDynamoProfileStore(db DynamoAPI, table string) *DynamoProfileStore {
	return &DynamoProfileStore{db: db, table: table}
}

func (s *DynamoProfileStore) Put(ctx context.Context, p *model.Profile) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put profile: %w", err)
	}
	return nil
}

func (s *DynamoProfileStore) Get(ctx context.Context, userID string) (*model.Profile, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("get profile %s: %w", userID, ErrProfileNotFound)
	}

	var p model.Profile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}
