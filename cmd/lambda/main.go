// Command lambda runs one pipeline stage as a platform function. STAGE
// selects the stage: split (table stream), extract (topic) or synthesize
// (bucket notification).
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/app"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/observability"
	"github.com/vocaldocs/api/internal/queue"
	"github.com/vocaldocs/api/internal/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Server.LogLevel,
		Format:      "json",
		ServiceName: "vocaldocs-stage",
	})

	backends, err := app.NewBackends(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise backends")
	}
	if backends.AWS == nil {
		log.Fatal().Msg("stage functions need AWS_REGION")
	}

	publisher, err := backends.Publisher()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create SNS client")
	}
	dispatcher := queue.NewSNSDispatcher(publisher, cfg.SNS.TopicArn)

	stages := app.NewStages(cfg, backends, dispatcher, nil, log)
	h := &trigger.Handler{
		Splitter:    stages.Splitter,
		Extractor:   stages.Extractor,
		Synthesizer: stages.Synthesizer,
		Log:         log,
	}

	stage := os.Getenv("STAGE")
	switch stage {
	case "split":
		lambda.Start(h.HandleStream)
	case "extract":
		if cfg.SNS.TopicArn == "" {
			log.Warn().Msg("SNS_TOPIC_ARN not set")
		}
		lambda.Start(h.HandleTopic)
	case "synthesize":
		lambda.Start(h.HandleBucket)
	default:
		log.Fatal().Str("stage", stage).Msg("STAGE must be split, extract or synthesize")
	}
}
