package model

import (
	"fmt"
	"strings"
)

const (
	TextArtifactName  = "formatted_output.txt"
	AudioArtifactName = "Audio.mp3"
	textInputName     = "input.txt"
)

// SourceKey is where intake stores the uploaded document. TEXT jobs use
// an empty fileName.
func SourceKey(ref, fileName string) string {
	if fileName == "" {
		fileName = textInputName
	}
	return fmt.Sprintf("upload/%s/%s", ref, fileName)
}

func ImagesPrefix(ref string) string {
	return fmt.Sprintf("images/%s/", ref)
}

// PageImageKey pads the page number so lexicographic order is page order.
func PageImageKey(ref string, page int) string {
	return fmt.Sprintf("images/%s/page_%04d.png", ref, page)
}

func TextKey(ref string) string {
	return fmt.Sprintf("download/%s/%s", ref, TextArtifactName)
}

func ChunkKey(ref string, index int) string {
	return fmt.Sprintf("download/%s/chunk_%d.mp3", ref, index)
}

func AudioKey(ref string) string {
	return fmt.Sprintf("download/%s/%s", ref, AudioArtifactName)
}

// S3URI formats a bucket/key pair the way the S3Path attribute stores it.
func S3URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// ReferenceKeyFromTextKey extracts the job identity from a text artifact
// key. Keys of any other shape are rejected.
func ReferenceKeyFromTextKey(key string) (string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "download" || parts[2] != TextArtifactName || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
