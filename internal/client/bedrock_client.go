package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/vocaldocs/api/internal/config"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	transcribePrompt = "Read the text in this image in sequence, DO NOT add any word that is not included, ignore footers and headers. Give me the text directly without any extra word from your side."
)

// BedrockClient reads page images through an Anthropic vision model on Bedrock
type BedrockClient struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
}

// AnthropicRequest is the messages API body accepted by InvokeModel
type AnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	TopK             int                `json:"top_k"`
	Messages         []AnthropicMessage `json:"messages"`
}

type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

type AnthropicContent struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// AnthropicResponse is the subset of the model reply we read
type AnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func NewBedrockClient(awsCfg aws.Config, cfg *config.BedrockConfig) *BedrockClient {
	return &BedrockClient{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		modelID:   ModelIDForRegion(awsCfg.Region, cfg.BaseModelID),
		maxTokens: cfg.MaxTokens,
	}
}

// ModelIDForRegion picks the cross-region inference profile matching the
// deployment region.
func ModelIDForRegion(region, baseModelID string) string {
	switch {
	case strings.HasPrefix(region, "eu-"):
		return "eu." + baseModelID
	case strings.HasPrefix(region, "us-"):
		return "us." + baseModelID
	case strings.HasPrefix(region, "ap-"):
		return "apac." + baseModelID
	default:
		return "us." + baseModelID
	}
}

// NewTranscribeRequest builds the single-image request body
func NewTranscribeRequest(png []byte, maxTokens int) AnthropicRequest {
	return AnthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      0,
		TopP:             1,
		TopK:             0,
		Messages: []AnthropicMessage{
			{
				Role: "user",
				Content: []AnthropicContent{
					{
						Type: "image",
						Source: &ImageSource{
							Type:      "base64",
							MediaType: "image/png",
							Data:      base64.StdEncoding.EncodeToString(png),
						},
					},
					{Type: "text", Text: transcribePrompt},
				},
			},
		},
	}
}

// Transcribe returns the text the model reads from one PNG page
func (c *BedrockClient) Transcribe(ctx context.Context, png []byte) (string, error) {
	body, err := json.Marshal(NewTranscribeRequest(png, c.maxTokens))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke model %s: %w", c.modelID, err)
	}

	return parseTranscribeResponse(out.Body)
}

func parseTranscribeResponse(body []byte) (string, error) {
	var resp AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("model response has no text content")
	}
	return sb.String(), nil
}

func (c *BedrockClient) ModelID() string {
	return c.modelID
}
