package model

import "time"

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage is pushed to subscribers whenever a job changes status.
type WSStatusMessage struct {
	Type         string    `json:"type"`
	ReferenceKey string    `json:"reference_key"`
	Status       JobStatus `json:"TaskStatus"`
	Terminal     bool      `json:"terminal"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
