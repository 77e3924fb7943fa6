// Package models defines the data structures for transcript results and events.
package models

import "time"

// TranscriptResult is one finalized transcription of a clip.
//
// IsTarget carries the identity decision of the segments the clip was
// built from. It travels with the result end to end; downstream views
// filter on it, they never drop non-target results from storage.
type TranscriptResult struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Start      time.Duration `json:"start"` // offset from session start
	End        time.Duration `json:"end"`
	IsTarget   bool          `json:"isTarget"`
	Similarity float64       `json:"similarity"`
	Timestamp  time.Time     `json:"timestamp"`
}

// TranscriptPartial is an interim streaming transcript event.
type TranscriptPartial struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	ProfileID string `json:"profileId"`
	Principal string `json:"principal"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// TranscriptFinal is a finalized transcript event with identity metadata.
type TranscriptFinal struct {
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	ProfileID  string  `json:"profileId"`
	Principal  string  `json:"principal"`
	ResultID   string  `json:"resultId"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsTarget   bool    `json:"isTarget"`
	Similarity float64 `json:"similarity"`
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Timestamp  int64   `json:"timestamp"`
}

// Event types attached to published payloads.
const (
	EventTypePartial = "monitor.transcript.partial"
	EventTypeFinal   = "monitor.transcript.final"
)
