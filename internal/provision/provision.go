// Package provision creates and removes the cloud resources the pipeline
// runs on: the job and profile tables, the artifact bucket and the fan-out
// topic. Every step tolerates the resource already being in the wanted
// state, so setup and teardown can be re-run.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
)

const tableWaitTimeout = 2 * time.Minute

// DefaultOwnerIndex is the job table's index on the owner attribute.
const DefaultOwnerIndex = "Username-index"

type TableAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

type BucketAPI interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type TopicAPI interface {
	CreateTopic(ctx context.Context, in *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	DeleteTopic(ctx context.Context, in *sns.DeleteTopicInput, optFns ...func(*sns.Options)) (*sns.DeleteTopicOutput, error)
}

// Resources names what setup creates and teardown removes.
type Resources struct {
	Region        string
	JobsTable     string
	OwnerIndex    string
	ProfilesTable string
	Bucket        string
	TopicName     string
	// TopicArn is needed by teardown; setup fills it in.
	TopicArn string
}

type Provisioner struct {
	tables  TableAPI
	buckets BucketAPI
	topics  TopicAPI
	log     zerolog.Logger

	// WaitForTables blocks setup until new tables are ACTIVE.
	WaitForTables bool
}

func New(tables TableAPI, buckets BucketAPI, topics TopicAPI, log zerolog.Logger) *Provisioner {
	return &Provisioner{
		tables:        tables,
		buckets:       buckets,
		topics:        topics,
		log:           log,
		WaitForTables: true,
	}
}

// Setup creates every resource and returns the topic ARN.
func (p *Provisioner) Setup(ctx context.Context, r *Resources) (string, error) {
	if err := p.createJobsTable(ctx, r); err != nil {
		return "", err
	}
	if err := p.createProfilesTable(ctx, r.ProfilesTable); err != nil {
		return "", err
	}
	if err := p.createBucket(ctx, r.Bucket, r.Region); err != nil {
		return "", err
	}

	out, err := p.topics.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(r.TopicName)})
	if err != nil {
		return "", fmt.Errorf("failed to create topic %s: %w", r.TopicName, err)
	}
	r.TopicArn = aws.ToString(out.TopicArn)
	p.log.Info().Str("topic_arn", r.TopicArn).Msg("topic ready")

	return r.TopicArn, nil
}

// Teardown deletes every resource. Missing resources are skipped.
func (p *Provisioner) Teardown(ctx context.Context, r *Resources) error {
	var errs []error

	if r.TopicArn != "" {
		// DeleteTopic is itself idempotent.
		if _, err := p.topics.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(r.TopicArn)}); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete topic: %w", err))
		} else {
			p.log.Info().Str("topic_arn", r.TopicArn).Msg("topic deleted")
		}
	}

	if err := p.deleteBucket(ctx, r.Bucket); err != nil {
		errs = append(errs, err)
	}
	for _, table := range []string{r.JobsTable, r.ProfilesTable} {
		if err := p.deleteTable(ctx, table); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *Provisioner) createJobsTable(ctx context.Context, r *Resources) error {
	in := &dynamodb.CreateTableInput{
		TableName: aws.String(r.JobsTable),
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String("reference_key"), AttributeType: dbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("Username"), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String("reference_key"), KeyType: dbtypes.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []dbtypes.GlobalSecondaryIndex{
			{
				IndexName: aws.String(r.OwnerIndex),
				KeySchema: []dbtypes.KeySchemaElement{
					{AttributeName: aws.String("Username"), KeyType: dbtypes.KeyTypeHash},
				},
				Projection: &dbtypes.Projection{ProjectionType: dbtypes.ProjectionTypeAll},
			},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
		StreamSpecification: &dbtypes.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: dbtypes.StreamViewTypeNewAndOldImages,
		},
	}

	created, err := p.createTable(ctx, in)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	_, err = p.tables.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(r.JobsTable),
		TimeToLiveSpecification: &dbtypes.TimeToLiveSpecification{
			AttributeName: aws.String("ExpiresAt"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable TTL on %s: %w", r.JobsTable, err)
	}
	return nil
}

func (p *Provisioner) createProfilesTable(ctx context.Context, table string) error {
	_, err := p.createTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String("user_id"), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String("user_id"), KeyType: dbtypes.KeyTypeHash},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	return err
}

// createTable reports false when the table already existed.
func (p *Provisioner) createTable(ctx context.Context, in *dynamodb.CreateTableInput) (bool, error) {
	name := aws.ToString(in.TableName)
	_, err := p.tables.CreateTable(ctx, in)
	if err != nil {
		var inUse *dbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			p.log.Info().Str("table", name).Msg("table already exists")
			return false, nil
		}
		return false, fmt.Errorf("failed to create table %s: %w", name, err)
	}

	if p.WaitForTables {
		waiter := dynamodb.NewTableExistsWaiter(p.tables)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: in.TableName}, tableWaitTimeout); err != nil {
			return true, fmt.Errorf("table %s did not become active: %w", name, err)
		}
	}
	p.log.Info().Str("table", name).Msg("table created")
	return true, nil
}

func (p *Provisioner) deleteTable(ctx context.Context, table string) error {
	_, err := p.tables.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(table)})
	if err != nil {
		var notFound *dbtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			p.log.Info().Str("table", table).Msg("table already gone")
			return nil
		}
		return fmt.Errorf("failed to delete table %s: %w", table, err)
	}
	p.log.Info().Str("table", table).Msg("table deleted")
	return nil
}

func (p *Provisioner) createBucket(ctx context.Context, bucket, region string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}

	_, err := p.buckets.CreateBucket(ctx, in)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			p.log.Info().Str("bucket", bucket).Msg("bucket already exists")
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	p.log.Info().Str("bucket", bucket).Msg("bucket created")
	return nil
}

func (p *Provisioner) deleteBucket(ctx context.Context, bucket string) error {
	paginator := s3.NewListObjectsV2Paginator(p.buckets, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	removed := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var noBucket *s3types.NoSuchBucket
			if errors.As(err, &noBucket) {
				p.log.Info().Str("bucket", bucket).Msg("bucket already gone")
				return nil
			}
			return fmt.Errorf("failed to list bucket %s: %w", bucket, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = p.buckets.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: ids},
		})
		if err != nil {
			return fmt.Errorf("failed to empty bucket %s: %w", bucket, err)
		}
		removed += len(ids)
	}

	if _, err := p.buckets.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var noBucket *s3types.NoSuchBucket
		if errors.As(err, &noBucket) {
			return nil
		}
		return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
	}
	p.log.Info().Str("bucket", bucket).Int("objects_removed", removed).Msg("bucket deleted")
	return nil
}
