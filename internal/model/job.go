package model

import "time"

// Job is one document-to-speech request. Attribute names match the
// deployed table so records written by older tooling still decode.
type Job struct {
	ReferenceKey   string    `dynamodbav:"reference_key" json:"reference_key"`
	Owner          string    `dynamodbav:"Username" json:"username"`
	InputType      InputKind `dynamodbav:"InputType" json:"InputType"`
	S3Path         string    `dynamodbav:"S3Path" json:"S3Path"`
	FileName       string    `dynamodbav:"FileName,omitempty" json:"fileName,omitempty"`
	StartPage      int       `dynamodbav:"StartPage,omitempty" json:"startPage,omitempty"`
	EndPage        int       `dynamodbav:"EndPage,omitempty" json:"endPage,omitempty"`
	Language       string    `dynamodbav:"Language" json:"Language"`
	VoiceID        string    `dynamodbav:"voice_id,omitempty" json:"voice_id,omitempty"`
	Text           string    `dynamodbav:"text,omitempty" json:"text,omitempty"`
	Status         JobStatus `dynamodbav:"TaskStatus" json:"TaskStatus"`
	TextKey        string    `dynamodbav:"TextKey,omitempty" json:"textKey,omitempty"`
	AudioKey       string    `dynamodbav:"AudioKey,omitempty" json:"audioKey,omitempty"`
	Error          string    `dynamodbav:"ErrorMessage,omitempty" json:"error,omitempty"`
	UploadDateTime time.Time `dynamodbav:"UploadDateTime" json:"UploadDateTime"`
	UpdatedAt      time.Time `dynamodbav:"UpdatedAt" json:"updatedAt"`
	ExpiresAt      int64     `dynamodbav:"ExpiresAt" json:"-"`
}

// Transition is a conditional status change. It only applies while the
// stored status still equals From.
type Transition struct {
	ReferenceKey string
	From         JobStatus
	To           JobStatus
	TextKey      string
	AudioKey     string
	Error        string
}
