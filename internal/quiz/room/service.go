package room

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizroom/quizroom/internal/quiz/events"
	"github.com/quizroom/quizroom/internal/quiz/match"
	"github.com/quizroom/quizroom/internal/quiz/questions"
)

const (
	baseScore    = 10
	maxTimeBonus = 10
)

// Broadcaster delivers events to a room's connection group or to one
// connection. Delivery is fire-and-forget: no acknowledgment, no retry.
type Broadcaster interface {
	Broadcast(roomID string, ev events.Event)
	SendTo(connID string, ev events.Event)
}

// Settings are the game tunables.
type Settings struct {
	MaxPlayers    int
	QuestionBatch int
}

// DefaultSettings matches the original game: ten players per room, ten
// questions per session.
func DefaultSettings() Settings {
	return Settings{MaxPlayers: 10, QuestionBatch: 10}
}

// Config wires the service's collaborators.
type Config struct {
	Registry    Registry
	Source      questions.Source
	Broadcaster Broadcaster
	Recorder    match.Recorder
	Clock       clockwork.Clock
	Settings    Settings
}

// Service is the room orchestrator. A single mutex serializes every
// connection event and timer tick, so room state is never mutated in
// parallel and the tick-versus-answer race resolves deterministically.
type Service struct {
	mu          sync.Mutex
	registry    Registry
	source      questions.Source
	broadcaster Broadcaster
	recorder    match.Recorder
	clock       clockwork.Clock
	settings    Settings
}

func NewService(c Config) *Service {
	if c.Recorder == nil {
		c.Recorder = match.NopRecorder{}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Settings.MaxPlayers <= 0 {
		c.Settings.MaxPlayers = DefaultSettings().MaxPlayers
	}
	if c.Settings.QuestionBatch <= 0 {
		c.Settings.QuestionBatch = DefaultSettings().QuestionBatch
	}
	return &Service{
		registry:    c.Registry,
		source:      c.Source,
		broadcaster: c.Broadcaster,
		recorder:    c.Recorder,
		clock:       c.Clock,
		settings:    c.Settings,
	}
}

// CreateRoom creates the room if absent and joins the player. Creating an
// existing room just joins it.
func (s *Service) CreateRoom(connID, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.registry.Create(roomID)
	return s.joinLocked(r, connID, username)
}

// JoinRoom joins an existing room. The room is never created implicitly.
func (s *Service) JoinRoom(connID, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registry.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return s.joinLocked(r, connID, username)
}

// joinLocked applies the roster rules: cap check first, then rebind an
// existing username or append a fresh player with a zero score. The
// username is trusted as declared; equality within the room is the only
// identity rule, which is what makes reconnection work.
func (s *Service) joinLocked(r *Room, connID, username string) error {
	if len(r.Players) >= s.settings.MaxPlayers {
		return ErrRoomFull
	}

	if p := r.playerByUsername(username); p != nil {
		p.ConnID = connID
		log.Info().Str("room_id", r.ID).Str("username", username).Msg("player rebound to new connection")
	} else {
		r.Players = append(r.Players, &Player{ConnID: connID, Username: username})
		r.Scores[username] = 0
		log.Info().Str("room_id", r.ID).Str("username", username).Int("players", len(r.Players)).Msg("player joined")
	}

	s.broadcaster.SendTo(connID, events.NewMessageBacklog(r.Messages))
	s.broadcaster.Broadcast(r.ID, events.NewPlayerUpdate(r.ID, r.roster()))
	return nil
}

// RejoinRoom rebinds a returning player's connection and resynchronizes it:
// scoreboard, full chat log, roster, and the live round snapshot if one is
// running. Rejoining a missing room is a silent no-op for the room, but the
// caller gets ErrRoomNotFound so the gateway can drop the binding.
func (s *Service) RejoinRoom(connID, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registry.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	if p := r.playerByUsername(username); p != nil {
		p.ConnID = connID
	} else {
		r.Players = append(r.Players, &Player{ConnID: connID, Username: username})
		r.Scores[username] = 0
	}

	s.broadcaster.SendTo(connID, events.NewScoreUpdate(r.scoreboard()))
	s.broadcaster.SendTo(connID, events.NewMessageBacklog(r.Messages))
	s.broadcaster.Broadcast(r.ID, events.NewPlayerUpdate(r.ID, r.roster()))

	if r.QuizStarted && r.CurrentQuestion < len(r.Questions) {
		q := r.Questions[r.CurrentQuestion]
		s.broadcaster.SendTo(connID, events.NewStartQuiz(
			questionView(q), r.CurrentQuestion+1, len(r.Questions), r.TimeLeft))
	}
	return nil
}

// StartQuiz begins round one. Starting an already-running session is a
// no-op. An empty question batch leaves the room in the lobby and tells
// the whole room why.
func (s *Service) StartQuiz(ctx context.Context, roomID string) error {
	s.mu.Lock()
	r, ok := s.registry.Get(roomID)
	if !ok || r.QuizStarted || r.starting {
		s.mu.Unlock()
		return nil
	}
	r.starting = true
	batch := s.settings.QuestionBatch
	s.mu.Unlock()

	// Fetch outside the lock; the provider call may block on the network.
	qs := s.source.Fetch(ctx, batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok = s.registry.Get(roomID)
	if !ok {
		// Everyone left while we were fetching.
		return nil
	}
	r.starting = false

	if len(qs) == 0 {
		log.Warn().Str("room_id", roomID).Msg("question source returned empty batch")
		s.broadcaster.Broadcast(roomID, events.NewQuizError("No questions available."))
		return ErrNoQuestions
	}

	r.Questions = qs
	r.CurrentQuestion = 0
	r.QuizStarted = true
	log.Info().Str("room_id", roomID).Int("questions", len(qs)).Msg("quiz started")
	s.startRoundLocked(r)
	return nil
}

// startRoundLocked presents the current question and arms its countdown.
func (s *Service) startRoundLocked(r *Room) {
	q := r.Questions[r.CurrentQuestion]
	r.AnsweredPlayers = make(map[string]struct{})
	r.TimeLeft = q.Seconds

	s.broadcaster.Broadcast(r.ID, events.NewStartQuiz(
		questionView(q), r.CurrentQuestion+1, len(r.Questions), r.TimeLeft))
	s.startTimerLocked(r)
}

// SubmitAnswer arbitrates one answer. It is a silent no-op when no round
// is running, the connection maps to no player, or the player already
// answered — that triple guard makes submission idempotent per player per
// round and immune to late answers racing round resolution.
func (s *Service) SubmitAnswer(connID, roomID, answer string, timeTakenMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registry.Get(roomID)
	if !ok || r.timer == nil {
		return
	}
	p := r.playerByConn(connID)
	if p == nil {
		return
	}
	if _, done := r.AnsweredPlayers[p.Username]; done {
		return
	}
	r.AnsweredPlayers[p.Username] = struct{}{}

	q := r.Questions[r.CurrentQuestion]
	if answer == q.CorrectAnswer {
		r.Scores[p.Username] += baseScore + timeBonus(timeTakenMs)
	}

	// Scoreboard goes out win or lose so clients can show live standings.
	s.broadcaster.Broadcast(r.ID, events.NewScoreUpdate(r.scoreboard()))

	if r.allAnswered() {
		r.stopTimer()
		s.advanceLocked(r)
	}
}

// timeBonus rewards fast answers: one point per full second under ten,
// never negative, never above the cap.
func timeBonus(timeTakenMs int) int {
	bonus := maxTimeBonus - timeTakenMs/1000
	if bonus < 0 {
		return 0
	}
	if bonus > maxTimeBonus {
		return maxTimeBonus
	}
	return bonus
}

// advanceLocked is the single resolution path shared by the timeout and
// all-answered triggers. The caller has already cancelled the timer.
func (s *Service) advanceLocked(r *Room) {
	if r.CurrentQuestion < len(r.Questions)-1 {
		r.CurrentQuestion++
		log.Info().Str("room_id", r.ID).Int("question", r.CurrentQuestion+1).Msg("advancing to next question")
		s.startRoundLocked(r)
		return
	}

	// Last question resolved: the session is over and the room dies with it.
	scores := r.scoreboard()
	s.broadcaster.Broadcast(r.ID, events.NewQuizEnd(scores))
	log.Info().Str("room_id", r.ID).Msg("quiz ended")

	rec := match.Record{
		RoomID:     r.ID,
		Players:    make([]string, 0, len(r.Players)),
		Scores:     scores,
		FinishedAt: s.clock.Now(),
	}
	for _, p := range r.Players {
		rec.Players = append(rec.Players, p.Username)
	}
	go s.record(rec)

	s.registry.Remove(r.ID)
}

func (s *Service) record(rec match.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordMatch(ctx, rec); err != nil {
		log.Error().Err(err).Str("room_id", rec.RoomID).Msg("failed to record match")
	}
}

// SendMessage appends to the room's chat log and relays to everyone.
func (s *Service) SendMessage(roomID, username, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registry.Get(roomID)
	if !ok {
		return
	}
	msg := events.ChatMessage{
		Username:  username,
		Message:   text,
		Timestamp: s.clock.Now(),
	}
	r.Messages = append(r.Messages, msg)
	s.broadcaster.Broadcast(roomID, events.NewReceiveMessage(msg))
}

// Disconnect removes the connection's player from whichever room holds it,
// deleting rooms that end up empty. An unknown connection is a no-op.
func (s *Service) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.registry.Rooms() {
		if p := r.playerByConn(connID); p != nil {
			r.removePlayer(p.Username)
			log.Info().Str("room_id", r.ID).Str("username", p.Username).Msg("player disconnected")
			s.broadcaster.Broadcast(r.ID, events.NewPlayerUpdate(r.ID, r.roster()))
		}
		if len(r.Players) == 0 {
			s.registry.Remove(r.ID)
		}
	}
}

func questionView(q questions.Question) events.QuestionView {
	return events.QuestionView{
		Question: q.Prompt,
		Options:  q.Options,
		Timer:    q.Seconds,
	}
}
