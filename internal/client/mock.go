package client

import (
	"context"
	"crypto/sha1"
	"fmt"
)

// MockSpeechClient stands in for Polly when AWS is not configured.
// The output is an ID3-tagged byte stream, not playable audio.
type MockSpeechClient struct{}

func (MockSpeechClient) Synthesize(ctx context.Context, text, voiceID, languageCode string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	sum := sha1.Sum([]byte(text))
	return append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), []byte(fmt.Sprintf("%s:%s:%x", voiceID, languageCode, sum))...), nil
}

// MockVisionClient stands in for Bedrock when AWS is not configured.
type MockVisionClient struct{}

func (MockVisionClient) Transcribe(ctx context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty image")
	}
	return fmt.Sprintf("Transcribed page of %d bytes.", len(png)), nil
}
