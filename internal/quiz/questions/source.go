// Package questions adapts the external question-bank provider into the
// batch shape the room orchestrator consumes. The provider is treated as
// untrusted: any transport or data failure degrades to an empty batch and
// never reaches the orchestrator as an error.
package questions

import "context"

// Question is one fetched trivia question. Options are shuffled once at
// fetch time and never reordered afterwards.
type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Seconds       int      `json:"timer"`
}

// Source supplies a finite ordered batch of questions. Implementations
// fail open: a shorter, possibly empty slice is returned on any error.
type Source interface {
	Fetch(ctx context.Context, limit int) []Question
}

// Static is a fixed in-memory source, used in tests and as an offline
// fallback when no API key is configured.
type Static struct {
	Questions []Question
}

func (s *Static) Fetch(_ context.Context, limit int) []Question {
	if limit > len(s.Questions) {
		limit = len(s.Questions)
	}
	out := make([]Question, limit)
	copy(out, s.Questions[:limit])
	return out
}
