package events

import "time"

// PlayerInfo is the roster view of a single player.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PlayerUpdatePayload carries the full roster after any join/leave/rebind.
type PlayerUpdatePayload struct {
	Players []PlayerInfo `json:"players"`
	RoomID  string       `json:"roomId"`
}

// ScoreUpdatePayload carries the current scoreboard, username -> score.
type ScoreUpdatePayload struct {
	Scores map[string]int `json:"scores"`
}

// QuestionView is the client-facing shape of a question. It never carries
// the correct answer.
type QuestionView struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Timer    int      `json:"timer"`
}

// StartQuizPayload announces a new round. CurrentQuestion is 1-based.
type StartQuizPayload struct {
	Question        QuestionView `json:"question"`
	CurrentQuestion int          `json:"currentQuestion"`
	TotalQuestions  int          `json:"totalQuestions"`
	TimeLeft        int          `json:"timeLeft"`
}

// TimerUpdatePayload is broadcast once per second while a round runs.
type TimerUpdatePayload struct {
	TimeLeft int `json:"timeLeft"`
}

// QuizEndPayload carries the final scoreboard.
type QuizEndPayload struct {
	Scores map[string]int `json:"scores"`
}

// ChatMessage is a single chat entry. The same payload type is used for
// live relay and for the backlog sent to joiners.
type ChatMessage struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPlayerUpdate(roomID string, players []PlayerInfo) Event {
	return New(TypePlayerUpdate, PlayerUpdatePayload{Players: players, RoomID: roomID})
}

func NewScoreUpdate(scores map[string]int) Event {
	return New(TypeScoreUpdate, ScoreUpdatePayload{Scores: scores})
}

func NewStartQuiz(q QuestionView, current, total, timeLeft int) Event {
	return New(TypeStartQuiz, StartQuizPayload{
		Question:        q,
		CurrentQuestion: current,
		TotalQuestions:  total,
		TimeLeft:        timeLeft,
	})
}

func NewTimerUpdate(timeLeft int) Event {
	return New(TypeTimerUpdate, TimerUpdatePayload{TimeLeft: timeLeft})
}

func NewQuizEnd(scores map[string]int) Event {
	return New(TypeQuizEnd, QuizEndPayload{Scores: scores})
}

// NewReceiveMessage relays a single chat message.
func NewReceiveMessage(msg ChatMessage) Event {
	return New(TypeReceiveMessage, msg)
}

// NewMessageBacklog sends the accumulated chat log to a (re)joining player.
func NewMessageBacklog(msgs []ChatMessage) Event {
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return New(TypeReceiveMessage, msgs)
}

func NewRoomFull() Event {
	return New(TypeRoomFull, nil)
}

// NewQuizError reports a failure. The payload is a bare string to match
// the wire format clients already consume.
func NewQuizError(reason string) Event {
	return New(TypeQuizError, reason)
}
