package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the envelope for every message pushed to clients.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Type identifies an outbound quiz event.
type Type string

const (
	TypePlayerUpdate   Type = "playerUpdate"
	TypeScoreUpdate    Type = "scoreUpdate"
	TypeStartQuiz      Type = "startQuiz"
	TypeTimerUpdate    Type = "timerUpdate"
	TypeQuizEnd        Type = "quizEnd"
	TypeReceiveMessage Type = "receiveMessage"
	TypeRoomFull       Type = "roomFull"
	TypeQuizError      Type = "quizError"
)

// New wraps a payload in an event envelope. The payload is marshaled
// immediately so callers may hand over state guarded by a lock.
func New(t Type, payload any) Event {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
	}
	if payload == nil {
		return ev
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
		return ev
	}
	ev.Data = data
	return ev
}
