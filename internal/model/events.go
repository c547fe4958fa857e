package model

// JobCreatedEvent starts the splitter for a freshly inserted job.
type JobCreatedEvent struct {
	ReferenceKey string    `json:"reference_key"`
	InputType    InputKind `json:"InputType"`
	S3Path       string    `json:"S3Path"`
	StartPage    int       `json:"StartPage,omitempty"`
	EndPage      int       `json:"EndPage,omitempty"`
}

// PagesReadyMessage is the splitter's fan-out after rasterizing a PDF.
type PagesReadyMessage struct {
	ReferenceKey string   `json:"reference_key"`
	Bucket       string   `json:"bucket"`
	Images       []string `json:"images"`
}

// ObjectCreatedEvent announces a new object in the artifact bucket.
type ObjectCreatedEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}
