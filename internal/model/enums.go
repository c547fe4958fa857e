package model

import (
	"errors"
	"fmt"
)

// InputKind is the kind of source a job was created from.
type InputKind string

const (
	InputPDF  InputKind = "PDF"
	InputText InputKind = "TEXT"
)

// JobStatus values are stored verbatim in the TaskStatus attribute.
type JobStatus string

const (
	StatusUploadCompleted JobStatus = "Upload-Completed"
	StatusPagesReady      JobStatus = "pdf-to-images conversion is completed"
	StatusSplitFailed     JobStatus = "pdf-to-images conversion is failed"
	StatusTextReady       JobStatus = "images-to-text conversion is completed"
	StatusExtractFailed   JobStatus = "images-to-text conversion is failed"
	StatusVoiceReady      JobStatus = "Voice-is-Ready"
	StatusVoiceFailed     JobStatus = "text-to-voice conversion is failed"
)

var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[JobStatus][]JobStatus{
	StatusUploadCompleted: {StatusPagesReady, StatusTextReady, StatusSplitFailed},
	StatusPagesReady:      {StatusTextReady, StatusExtractFailed},
	StatusTextReady:       {StatusVoiceReady, StatusVoiceFailed},
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusUploadCompleted, StatusPagesReady, StatusSplitFailed,
		StatusTextReady, StatusExtractFailed, StatusVoiceReady, StatusVoiceFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s JobStatus) Failed() bool {
	return s == StatusSplitFailed || s == StatusExtractFailed || s == StatusVoiceFailed
}

// CanTransition reports whether from -> to is an edge of the job lifecycle.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrIllegalTransition wrapped with both statuses
// when from -> to is not allowed.
func CheckTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrIllegalTransition, from, to)
	}
	return nil
}
