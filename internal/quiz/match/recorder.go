// Package match is the boundary to the completed-match collaborator.
// Finished sessions are handed off as records; storing them is someone
// else's job.
package match

import (
	"context"
	"time"
)

// Record describes one finished session.
type Record struct {
	RoomID     string         `json:"roomId"`
	Players    []string       `json:"players"`
	Scores     map[string]int `json:"scores"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Recorder receives completed-match records. Implementations must not
// block the caller for long; failures are the implementation's to log.
type Recorder interface {
	RecordMatch(ctx context.Context, rec Record) error
}

// NopRecorder drops records. Used when no downstream consumer is wired.
type NopRecorder struct{}

func (NopRecorder) RecordMatch(context.Context, Record) error { return nil }
