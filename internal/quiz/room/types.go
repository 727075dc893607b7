// Package room holds the session orchestrator: the room registry, the
// per-room state machine, question-timer scheduling, answer arbitration and
// scoring. All room state is ephemeral process memory.
package room

import (
	"github.com/quizroom/quizroom/internal/quiz/events"
	"github.com/quizroom/quizroom/internal/quiz/questions"
)

// Player is one roster entry. Username is the durable identity used for
// scoring and dedup; ConnID is the current live connection and is replaced
// on reconnect.
type Player struct {
	ConnID   string
	Username string
}

// Room is one isolated game session. All fields are guarded by the
// Service mutex; nothing outside the service may hold a Room across
// operations.
type Room struct {
	ID              string
	Players         []*Player
	Scores          map[string]int
	Questions       []questions.Question
	CurrentQuestion int
	AnsweredPlayers map[string]struct{}
	TimeLeft        int
	QuizStarted     bool
	Messages        []events.ChatMessage

	// starting blocks a second concurrent start while questions are
	// being fetched outside the lock.
	starting bool

	timer *roundTimer
}

func newRoom(id string) *Room {
	return &Room{
		ID:              id,
		Players:         make([]*Player, 0),
		Scores:          make(map[string]int),
		AnsweredPlayers: make(map[string]struct{}),
		Messages:        make([]events.ChatMessage, 0),
	}
}

func (r *Room) playerByUsername(username string) *Player {
	for _, p := range r.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

func (r *Room) playerByConn(connID string) *Player {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) removePlayer(username string) {
	for i, p := range r.Players {
		if p.Username == username {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			break
		}
	}
	delete(r.Scores, username)
}

// allAnswered reports whether every current roster member has submitted
// for the running question. The check deliberately uses the live roster,
// so a mid-round disconnect can let the remaining players finish early.
func (r *Room) allAnswered() bool {
	for _, p := range r.Players {
		if _, ok := r.AnsweredPlayers[p.Username]; !ok {
			return false
		}
	}
	return true
}

func (r *Room) roster() []events.PlayerInfo {
	players := make([]events.PlayerInfo, len(r.Players))
	for i, p := range r.Players {
		players[i] = events.PlayerInfo{ID: p.ConnID, Username: p.Username}
	}
	return players
}

func (r *Room) scoreboard() map[string]int {
	scores := make(map[string]int, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	return scores
}

// stopTimer cancels the active countdown, if any. Safe to call twice:
// both the timeout and the all-answered paths may race to cancel.
func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.stop()
		r.timer = nil
	}
}
