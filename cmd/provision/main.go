// Command provision creates or removes the tables, bucket and topic the
// pipeline needs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vocaldocs/api/internal/client"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/observability"
	"github.com/vocaldocs/api/internal/provision"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:          "provision",
		Short:        "Manage the cloud resources of the document-to-speech pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline")

	root.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Create tables, bucket and topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p, r, log, err := build(ctx)
			if err != nil {
				return err
			}
			arn, err := p.Setup(ctx, r)
			if err != nil {
				return err
			}
			log.Info().Msg("setup complete")
			fmt.Fprintf(cmd.OutOrStdout(), "SNS_TOPIC_ARN=%s\n", arn)
			return nil
		},
	})

	var topicArn string
	teardown := &cobra.Command{
		Use:   "teardown",
		Short: "Delete topic, bucket contents, bucket and tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p, r, log, err := build(ctx)
			if err != nil {
				return err
			}
			if topicArn != "" {
				r.TopicArn = topicArn
			}
			if err := p.Teardown(ctx, r); err != nil {
				return err
			}
			log.Info().Msg("teardown complete")
			return nil
		},
	}
	teardown.Flags().StringVar(&topicArn, "topic-arn", "", "topic to delete (defaults to SNS_TOPIC_ARN)")
	root.AddCommand(teardown)

	return root
}

func build(ctx context.Context) (*provision.Provisioner, *provision.Resources, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Server.LogLevel,
		Format:      "console",
		ServiceName: "vocaldocs-provision",
	})

	if !cfg.AWS.Configured() {
		return nil, nil, log, fmt.Errorf("AWS_REGION is required")
	}
	awsCfg, err := client.LoadAWSConfig(ctx, &cfg.AWS)
	if err != nil {
		return nil, nil, log, err
	}

	p := provision.New(
		dynamodb.NewFromConfig(awsCfg),
		s3.NewFromConfig(awsCfg),
		sns.NewFromConfig(awsCfg),
		log,
	)
	ownerIndex := cfg.Dynamo.OwnerIndex
	if ownerIndex == "" {
		ownerIndex = provision.DefaultOwnerIndex
		log.Info().Msgf("creating owner index %s; set DYNAMODB_OWNER_INDEX to query it", ownerIndex)
	}

	r := &provision.Resources{
		Region:        cfg.AWS.Region,
		JobsTable:     cfg.Dynamo.JobsTable,
		OwnerIndex:    ownerIndex,
		ProfilesTable: cfg.Dynamo.ProfilesTable,
		Bucket:        cfg.Storage.Bucket,
		TopicName:     cfg.SNS.TopicName,
		TopicArn:      cfg.SNS.TopicArn,
	}
	return p, r, log, nil
}
