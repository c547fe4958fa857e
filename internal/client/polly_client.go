package client

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/vocaldocs/api/internal/config"
)

// PollyClient synthesizes MP3 audio with Amazon Polly
type PollyClient struct {
	client *polly.Client
	engine string
}

func NewPollyClient(awsCfg aws.Config, cfg *config.PollyConfig) *PollyClient {
	return &PollyClient{
		client: polly.NewFromConfig(awsCfg),
		engine: cfg.Engine,
	}
}

// Synthesize converts one chunk of text to MP3 bytes
func (c *PollyClient) Synthesize(ctx context.Context, text, voiceID, languageCode string) ([]byte, error) {
	input := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voiceID),
	}
	if languageCode != "" {
		input.LanguageCode = types.LanguageCode(languageCode)
	}
	if c.engine != "" {
		input.Engine = types.Engine(c.engine)
	}

	out, err := c.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("polly returned empty audio")
	}
	return audio, nil
}
