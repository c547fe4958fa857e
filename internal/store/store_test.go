package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocaldocs/api/internal/model"
)

func newJob(ref, owner string, uploaded time.Time) *model.Job {
	return &model.Job{
		ReferenceKey:   ref,
		Owner:          owner,
		InputType:      model.InputText,
		Language:       "english",
		Status:         model.StatusUploadCompleted,
		UploadDateTime: uploaded,
		UpdatedAt:      uploaded,
	}
}

func TestMemoryStore_CreateRejectsDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newJob("a", "alice@example.com", time.Now())))
	err := s.Create(ctx, newJob("a", "bob@example.com", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Owner)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TransitionIsCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a", "alice", time.Now())))

	job, err := s.Transition(ctx, model.Transition{
		ReferenceKey: "a",
		From:         model.StatusUploadCompleted,
		To:           model.StatusTextReady,
		TextKey:      model.TextKey("a"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusTextReady, job.Status)
	assert.Equal(t, model.TextKey("a"), job.TextKey)

	// A late failure from the same stage must not overwrite the newer status.
	_, err = s.Transition(ctx, model.Transition{
		ReferenceKey: "a",
		From:         model.StatusUploadCompleted,
		To:           model.StatusSplitFailed,
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTextReady, got.Status)
}

func TestMemoryStore_TransitionRejectsIllegalEdge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a", "alice", time.Now())))

	_, err := s.Transition(ctx, model.Transition{
		ReferenceKey: "a",
		From:         model.StatusUploadCompleted,
		To:           model.StatusVoiceReady,
	})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestMemoryStore_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a", "alice", time.Now())))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := model.StatusTextReady
			if i%2 == 0 {
				to = model.StatusSplitFailed
			}
			if _, err := s.Transition(ctx, model.Transition{ReferenceKey: "a", From: model.StatusUploadCompleted, To: to}); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_ListByOwnerNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, newJob("old", "alice", base)))
	require.NoError(t, s.Create(ctx, newJob("new", "alice", base.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, newJob("other", "bob", base.Add(2*time.Hour))))

	jobs, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ReferenceKey)
	assert.Equal(t, "old", jobs[1].ReferenceKey)

	none, err := s.ListByOwner(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// fakeDynamo records requests and returns canned responses.
type fakeDynamo struct {
	DynamoAPI
	putErr    error
	updateErr error
	getItem   map[string]types.AttributeValue
	lastPut   *dynamodb.PutItemInput
	lastQuery *dynamodb.QueryInput
	lastScan  *dynamodb.ScanInput
	items     []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{Attributes: f.getItem}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	return &dynamodb.QueryOutput{Items: f.items}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.lastScan = in
	return &dynamodb.ScanOutput{Items: f.items}, nil
}

func TestDynamoStore_CreateIsConditional(t *testing.T) {
	db := &fakeDynamo{}
	s := NewDynamoStore(db, "jobs", "")

	job := newJob("ref-1", "alice@example.com", time.Now().UTC())
	job.ExpiresAt = 1700000000
	require.NoError(t, s.Create(context.Background(), job))

	require.NotNil(t, db.lastPut)
	assert.Equal(t, "jobs", *db.lastPut.TableName)
	require.NotNil(t, db.lastPut.ConditionExpression)
	assert.Contains(t, *db.lastPut.ConditionExpression, "attribute_not_exists")
	assert.Equal(t, &types.AttributeValueMemberS{Value: "ref-1"}, db.lastPut.Item["reference_key"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "alice@example.com"}, db.lastPut.Item["Username"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Upload-Completed"}, db.lastPut.Item["TaskStatus"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000000"}, db.lastPut.Item["ExpiresAt"])

	db.putErr = &types.ConditionalCheckFailedException{}
	assert.ErrorIs(t, s.Create(context.Background(), job), ErrAlreadyExists)
}

func TestDynamoStore_TransitionConflictVersusMissing(t *testing.T) {
	ctx := context.Background()
	tr := model.Transition{ReferenceKey: "ref-1", From: model.StatusUploadCompleted, To: model.StatusPagesReady}

	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	s := NewDynamoStore(db, "jobs", "")
	_, err := s.Transition(ctx, tr)
	assert.ErrorIs(t, err, ErrNotFound)

	stored := newJob("ref-1", "alice", time.Now().UTC())
	stored.Status = model.StatusSplitFailed
	item, err := attributevalue.MarshalMap(stored)
	require.NoError(t, err)
	db.getItem = item
	_, err = s.Transition(ctx, tr)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestDynamoStore_TransitionReturnsUpdatedJob(t *testing.T) {
	updated := newJob("ref-1", "alice", time.Now().UTC())
	updated.Status = model.StatusPagesReady
	item, err := attributevalue.MarshalMap(updated)
	require.NoError(t, err)

	s := NewDynamoStore(&fakeDynamo{getItem: item}, "jobs", "")
	job, err := s.Transition(context.Background(), model.Transition{
		ReferenceKey: "ref-1", From: model.StatusUploadCompleted, To: model.StatusPagesReady,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPagesReady, job.Status)
}

func TestDynamoStore_ListUsesIndexWhenConfigured(t *testing.T) {
	item, err := attributevalue.MarshalMap(newJob("ref-1", "alice", time.Now().UTC()))
	require.NoError(t, err)

	db := &fakeDynamo{items: []map[string]types.AttributeValue{item}}
	jobs, err := NewDynamoStore(db, "jobs", "Username-index").ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NotNil(t, db.lastQuery)
	assert.Equal(t, "Username-index", *db.lastQuery.IndexName)
	assert.Nil(t, db.lastScan)

	db = &fakeDynamo{items: []map[string]types.AttributeValue{item}}
	jobs, err = NewDynamoStore(db, "jobs", "").ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NotNil(t, db.lastScan)
	assert.NotNil(t, db.lastScan.FilterExpression)
}

func TestDynamoStore_ReadsStringPageRange(t *testing.T) {
	legacy := newJob("ref-1", "alice", time.Now().UTC())
	legacy.InputType = model.InputPDF
	item, err := attributevalue.MarshalMap(legacy)
	require.NoError(t, err)
	item["StartPage"] = &types.AttributeValueMemberS{Value: "2"}
	item["EndPage"] = &types.AttributeValueMemberS{Value: " 7 "}

	db := &fakeDynamo{getItem: item, items: []map[string]types.AttributeValue{item}}
	s := NewDynamoStore(db, "jobs", "Username-index")

	job, err := s.Get(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, 2, job.StartPage)
	assert.Equal(t, 7, job.EndPage)

	jobs, err := s.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].StartPage)

	blank := map[string]types.AttributeValue{}
	for k, v := range item {
		blank[k] = v
	}
	blank["StartPage"] = &types.AttributeValueMemberS{Value: ""}
	job, err = NewDynamoStore(&fakeDynamo{getItem: blank}, "jobs", "").Get(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Zero(t, job.StartPage)
}
