package model

import "time"

// JobSummary is one entry of the caller's job list. PDF jobs carry the
// file name, TEXT jobs a preview of the submitted text.
type JobSummary struct {
	ReferenceKey   string    `json:"reference_key"`
	TaskStatus     JobStatus `json:"TaskStatus"`
	UploadDateTime time.Time `json:"UploadDateTime"`
	InputType      InputKind `json:"InputType"`
	FileName       string    `json:"fileName,omitempty"`
	Text           string    `json:"text,omitempty"`
	Language       string    `json:"Language"`
	Error          string    `json:"error,omitempty"`
}

type TrackListResponse struct {
	Requests []JobSummary `json:"requests"`
}

type DownloadRequest struct {
	ReferenceKey string `json:"reference_key" validate:"required,uuid4"`
}

type DownloadResponse struct {
	PresignedURL string `json:"presigned_url"`
}
