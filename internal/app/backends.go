// Package app wires configuration to concrete storage, AI clients and
// pipeline stages for the server and lambda entry points.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/client"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/pipeline"
	"github.com/vocaldocs/api/internal/store"
)

// Backends are the stateful dependencies of the API and the stages.
type Backends struct {
	Jobs        store.JobStore
	Profiles    store.ProfileStore
	Storage     client.StorageClient
	Speaker     pipeline.Speaker
	Transcriber pipeline.Transcriber
	Rasterizer  pipeline.Rasterizer

	// AWS is nil in local mode.
	AWS *aws.Config
}

// NewBackends uses AWS when a region is configured and in-process fakes
// otherwise.
func NewBackends(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backends, error) {
	b := &Backends{Rasterizer: client.NewPDFRasterizer(cfg.PDF.DPI)}

	if !cfg.AWS.Configured() {
		log.Warn().Msg("AWS region not configured, using in-memory storage and mock AI clients")
		b.Jobs = store.NewMemoryStore()
		b.Profiles = store.NewMemoryProfileStore()
		b.Storage = client.NewMemoryStorage(cfg.Storage.Bucket)
		b.Speaker = client.MockSpeechClient{}
		b.Transcriber = client.MockVisionClient{}
		return b, nil
	}

	awsCfg, err := client.LoadAWSConfig(ctx, &cfg.AWS)
	if err != nil {
		return nil, err
	}
	b.AWS = &awsCfg

	s3Client, err := client.NewS3Client(awsCfg, cfg.Storage.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	b.Storage = s3Client

	db := dynamodb.NewFromConfig(awsCfg)
	b.Jobs = store.NewDynamoStore(db, cfg.Dynamo.JobsTable, cfg.Dynamo.OwnerIndex)
	b.Profiles = store.NewDynamoProfileStore(db, cfg.Dynamo.ProfilesTable)

	b.Speaker = client.NewPollyClient(awsCfg, &cfg.Polly)
	bedrock := client.NewBedrockClient(awsCfg, &cfg.Bedrock)
	b.Transcriber = bedrock

	log.Info().
		Str("region", cfg.AWS.Region).
		Str("bucket", cfg.Storage.Bucket).
		Str("jobs_table", cfg.Dynamo.JobsTable).
		Str("model", bedrock.ModelID()).
		Msg("AWS backends ready")
	return b, nil
}

// Publisher returns an SNS client for the fan-out topic.
func (b *Backends) Publisher() (*sns.Client, error) {
	if b.AWS == nil {
		return nil, fmt.Errorf("SNS requires AWS configuration")
	}
	return sns.NewFromConfig(*b.AWS), nil
}

// Stages are the three pipeline stages sharing one set of backends.
type Stages struct {
	Splitter    *pipeline.Splitter
	Extractor   *pipeline.Extractor
	Synthesizer *pipeline.Synthesizer
}

func NewStages(cfg *config.Config, b *Backends, dispatcher pipeline.Dispatcher, notifier pipeline.Notifier, log zerolog.Logger) *Stages {
	objects := pipeline.NewObjectStore(b.Storage)
	return &Stages{
		Splitter:  pipeline.NewSplitter(b.Jobs, objects, b.Rasterizer, dispatcher, notifier, log),
		Extractor: pipeline.NewExtractor(b.Jobs, objects, b.Transcriber, dispatcher, notifier, log),
		Synthesizer: pipeline.NewSynthesizer(b.Jobs, objects, b.Speaker, pipeline.SynthesisOptions{
			MaxChars:     cfg.Polly.MaxChars,
			ConcatChunks: cfg.Synthesis.ConcatChunks,
		}, notifier, log),
	}
}
