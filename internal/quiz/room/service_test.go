package room_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/quizroom/quizroom/internal/quiz/events"
	"github.com/quizroom/quizroom/internal/quiz/match"
	"github.com/quizroom/quizroom/internal/quiz/questions"
	"github.com/quizroom/quizroom/internal/quiz/room"
)

// sink captures everything the service emits, in order.
type sink struct {
	mu      sync.Mutex
	byRoom  []targeted
	byConn  []targeted
	records []match.Record
}

type targeted struct {
	target string
	event  events.Event
}

func (s *sink) Broadcast(roomID string, ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRoom = append(s.byRoom, targeted{target: roomID, event: ev})
}

func (s *sink) SendTo(connID string, ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConn = append(s.byConn, targeted{target: connID, event: ev})
}

func (s *sink) RecordMatch(_ context.Context, rec match.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *sink) broadcasts(t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, b := range s.byRoom {
		if b.event.Type == t {
			out = append(out, b.event)
		}
	}
	return out
}

func (s *sink) directs(connID string, t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, d := range s.byConn {
		if d.target == connID && d.event.Type == t {
			out = append(out, d.event)
		}
	}
	return out
}

func (s *sink) lastScores(t *testing.T) map[string]int {
	t.Helper()
	updates := s.broadcasts(events.TypeScoreUpdate)
	require.NotEmpty(t, updates)
	var payload events.ScoreUpdatePayload
	require.NoError(t, json.Unmarshal(updates[len(updates)-1].Data, &payload))
	return payload.Scores
}

func (s *sink) lastRoster(t *testing.T) []events.PlayerInfo {
	t.Helper()
	updates := s.broadcasts(events.TypePlayerUpdate)
	require.NotEmpty(t, updates)
	var payload events.PlayerUpdatePayload
	require.NoError(t, json.Unmarshal(updates[len(updates)-1].Data, &payload))
	return payload.Players
}

type fixture struct {
	svc   *room.Service
	reg   room.Registry
	sink  *sink
	clock *clockwork.FakeClock
}

func makeService(t *testing.T, qs []questions.Question) *fixture {
	t.Helper()
	f := &fixture{
		reg:   room.NewRegistry(),
		sink:  &sink{},
		clock: clockwork.NewFakeClock(),
	}
	f.svc = room.NewService(room.Config{
		Registry:    f.reg,
		Source:      &questions.Static{Questions: qs},
		Broadcaster: f.sink,
		Recorder:    f.sink,
		Clock:       f.clock,
		Settings:    room.DefaultSettings(),
	})
	return f
}

func twoQuestions() []questions.Question {
	return []questions.Question{
		{Prompt: "q1", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a", Seconds: 15},
		{Prompt: "q2", Options: []string{"w", "x", "y", "z"}, CorrectAnswer: "x", Seconds: 15},
	}
}

func TestCreateRoomJoinsAndBroadcastsRoster(t *testing.T) {
	f := makeService(t, nil)

	require.NoError(t, f.svc.CreateRoom("conn-1", "R1", "alice"))
	require.Equal(t, 1, f.reg.Len())

	roster := f.sink.lastRoster(t)
	require.Equal(t, []events.PlayerInfo{{ID: "conn-1", Username: "alice"}}, roster)

	// Creating again with the same name is a reconnect, not a duplicate.
	require.NoError(t, f.svc.CreateRoom("conn-2", "R1", "alice"))
	roster = f.sink.lastRoster(t)
	require.Len(t, roster, 1)
	require.Equal(t, "conn-2", roster[0].ID)
}

func TestJoinUnknownRoomCreatesNothing(t *testing.T) {
	f := makeService(t, nil)

	err := f.svc.JoinRoom("conn-1", "nope", "alice")
	require.ErrorIs(t, err, room.ErrRoomNotFound)
	require.Zero(t, f.reg.Len())
}

func TestRoomCapRejectsEleventhPlayer(t *testing.T) {
	f := makeService(t, nil)

	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("player-%d", i)
		require.NoError(t, f.svc.CreateRoom("conn-"+name, "R1", name))
	}

	err := f.svc.JoinRoom("conn-late", "R1", "latecomer")
	require.ErrorIs(t, err, room.ErrRoomFull)

	roster := f.sink.lastRoster(t)
	require.Len(t, roster, 10)
}

func TestDisconnectCleansUpRoster(t *testing.T) {
	f := makeService(t, nil)

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))

	f.svc.Disconnect("conn-a")
	roster := f.sink.lastRoster(t)
	require.Equal(t, []events.PlayerInfo{{ID: "conn-b", Username: "bob"}}, roster)

	// Last player out deletes the room.
	f.svc.Disconnect("conn-b")
	require.Zero(t, f.reg.Len())

	// Unknown connections are a no-op.
	f.svc.Disconnect("conn-ghost")
}

func TestScoringAwardsBaseAndTimeBonus(t *testing.T) {
	qs := []questions.Question{
		{Prompt: "q1", Options: []string{"a", "b"}, CorrectAnswer: "a", Seconds: 15},
	}
	f := makeService(t, qs)

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	require.NoError(t, f.svc.JoinRoom("conn-c", "R1", "carol"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	f.svc.SubmitAnswer("conn-a", "R1", "a", 0)     // instant: 10 + 10
	f.svc.SubmitAnswer("conn-b", "R1", "a", 12000) // slow: 10 + 0
	scores := f.sink.lastScores(t)
	require.Equal(t, 20, scores["alice"])
	require.Equal(t, 10, scores["bob"])

	// Wrong answer scores nothing but still resolves the round: everyone
	// has now answered and this was the last question.
	f.svc.SubmitAnswer("conn-c", "R1", "b", 1000)

	ends := f.sink.broadcasts(events.TypeQuizEnd)
	require.Len(t, ends, 1)
	var final events.QuizEndPayload
	require.NoError(t, json.Unmarshal(ends[0].Data, &final))
	require.Equal(t, map[string]int{"alice": 20, "bob": 10, "carol": 0}, final.Scores)

	require.Zero(t, f.reg.Len(), "an ended room is destroyed, not retained")

	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.records) == 1
	}, time.Second, 5*time.Millisecond, "final scores should be handed to the match recorder")
}

func TestDuplicateSubmissionCountsOnce(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	f.svc.SubmitAnswer("conn-a", "R1", "a", 0)
	f.svc.SubmitAnswer("conn-a", "R1", "a", 0)

	require.Len(t, f.sink.broadcasts(events.TypeScoreUpdate), 1)
	require.Equal(t, 20, f.sink.lastScores(t)["alice"])

	// The duplicate must not have tripped all-answered: bob is pending.
	r, ok := f.reg.Get("R1")
	require.True(t, ok)
	require.Zero(t, r.CurrentQuestion)
}

func TestAllAnsweredAdvancesExactlyOneRound(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	f.svc.SubmitAnswer("conn-a", "R1", "a", 1000)
	f.svc.SubmitAnswer("conn-b", "R1", "b", 1000)

	r, ok := f.reg.Get("R1")
	require.True(t, ok)
	require.Equal(t, 1, r.CurrentQuestion, "resolution advances the cursor exactly once")

	starts := f.sink.broadcasts(events.TypeStartQuiz)
	require.Len(t, starts, 2)
	var second events.StartQuizPayload
	require.NoError(t, json.Unmarshal(starts[1].Data, &second))
	require.Equal(t, 2, second.CurrentQuestion)
	require.Equal(t, 2, second.TotalQuestions)
	require.Equal(t, "q2", second.Question.Question)

	// Round two: both answer, the session ends, late answers vanish.
	f.svc.SubmitAnswer("conn-a", "R1", "x", 1000)
	f.svc.SubmitAnswer("conn-b", "R1", "x", 1000)
	require.Zero(t, f.reg.Len())
	f.svc.SubmitAnswer("conn-a", "R1", "x", 1000)
	require.Len(t, f.sink.broadcasts(events.TypeQuizEnd), 1)
}

func TestRoundStartNeverLeaksCorrectAnswer(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	starts := f.sink.broadcasts(events.TypeStartQuiz)
	require.Len(t, starts, 1)
	require.NotContains(t, string(starts[0].Data), "correct")

	var payload events.StartQuizPayload
	require.NoError(t, json.Unmarshal(starts[0].Data, &payload))
	require.Equal(t, "q1", payload.Question.Question)
	require.Equal(t, []string{"a", "b", "c", "d"}, payload.Question.Options)
	require.Equal(t, 15, payload.TimeLeft)
}

func TestStartQuizWithEmptySourceStaysInLobby(t *testing.T) {
	f := makeService(t, nil)

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	err := f.svc.StartQuiz(context.Background(), "R1")
	require.ErrorIs(t, err, room.ErrNoQuestions)

	errs := f.sink.broadcasts(events.TypeQuizError)
	require.Len(t, errs, 1)
	require.JSONEq(t, `"No questions available."`, string(errs[0].Data))

	r, ok := f.reg.Get("R1")
	require.True(t, ok, "a failed start keeps the room alive in the lobby")
	require.False(t, r.QuizStarted)
}

func TestStartQuizTwiceIsANoOp(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	require.Len(t, f.sink.broadcasts(events.TypeStartQuiz), 1)
}

func TestRejoinRebindsWithoutTouchingScores(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))
	f.svc.SubmitAnswer("conn-a", "R1", "a", 2000)

	require.NoError(t, f.svc.RejoinRoom("conn-a2", "R1", "alice"))

	roster := f.sink.lastRoster(t)
	require.Len(t, roster, 2, "rejoin must not grow the roster")

	scoreEvents := f.sink.directs("conn-a2", events.TypeScoreUpdate)
	require.Len(t, scoreEvents, 1)
	var scores events.ScoreUpdatePayload
	require.NoError(t, json.Unmarshal(scoreEvents[0].Data, &scores))
	require.Equal(t, map[string]int{"alice": 18, "bob": 0}, scores.Scores)

	snapshots := f.sink.directs("conn-a2", events.TypeStartQuiz)
	require.Len(t, snapshots, 1, "rejoin during a live round resends the round state")
	var snap events.StartQuizPayload
	require.NoError(t, json.Unmarshal(snapshots[0].Data, &snap))
	require.Equal(t, 1, snap.CurrentQuestion)
	require.NotContains(t, string(snapshots[0].Data), "correct")

	// The rebound connection can act for alice; the old one cannot.
	f.svc.SubmitAnswer("conn-a", "R1", "a", 0)
	require.Equal(t, 18, f.sink.lastScores(t)["alice"])
}

func TestRejoinUnknownRoomIsSilent(t *testing.T) {
	f := makeService(t, nil)

	err := f.svc.RejoinRoom("conn-a", "gone", "alice")
	require.ErrorIs(t, err, room.ErrRoomNotFound)
	require.Zero(t, f.reg.Len())
	require.Empty(t, f.sink.byRoom)
}

func TestChatLogRelayAndBacklog(t *testing.T) {
	f := makeService(t, nil)

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	f.svc.SendMessage("R1", "alice", "hello")
	f.svc.SendMessage("R1", "alice", "anyone here?")

	relayed := f.sink.broadcasts(events.TypeReceiveMessage)
	require.Len(t, relayed, 2)

	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	backlogs := f.sink.directs("conn-b", events.TypeReceiveMessage)
	require.Len(t, backlogs, 1)
	var backlog []events.ChatMessage
	require.NoError(t, json.Unmarshal(backlogs[0].Data, &backlog))
	require.Len(t, backlog, 2)
	require.Equal(t, "hello", backlog[0].Message)

	// Messages to unknown rooms go nowhere.
	f.svc.SendMessage("gone", "alice", "echo?")
	require.Len(t, f.sink.broadcasts(events.TypeReceiveMessage), 2)
}

// TestTimeoutResolvesUnansweredRound plays the reference scenario: alice
// answers correctly at 2s, bob never answers, and the countdown drives
// both rounds to timeout.
func TestTimeoutResolvesUnansweredRound(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	f.svc.SubmitAnswer("conn-a", "R1", "a", 2000)
	require.Equal(t, 18, f.sink.lastScores(t)["alice"])

	// Drive the fake clock one second at a time until both rounds have
	// timed out and the session ends.
	require.Eventually(t, func() bool {
		f.clock.Advance(time.Second)
		return len(f.sink.broadcasts(events.TypeQuizEnd)) == 1
	}, 5*time.Second, time.Millisecond)

	ends := f.sink.broadcasts(events.TypeQuizEnd)
	var final events.QuizEndPayload
	require.NoError(t, json.Unmarshal(ends[0].Data, &final))
	require.Equal(t, map[string]int{"alice": 18, "bob": 0}, final.Scores)

	require.Len(t, f.sink.broadcasts(events.TypeStartQuiz), 2, "both rounds were presented")
	require.NotEmpty(t, f.sink.broadcasts(events.TypeTimerUpdate))
	require.Zero(t, f.reg.Len())
}

// TestMidRoundDisconnectLetsRemainingPlayersFinish pins the source
// behavior: all-answered is judged against the live roster, so a player
// leaving mid-round lets the rest finish early.
func TestMidRoundDisconnectLetsRemainingPlayersFinish(t *testing.T) {
	f := makeService(t, twoQuestions())

	require.NoError(t, f.svc.CreateRoom("conn-a", "R1", "alice"))
	require.NoError(t, f.svc.JoinRoom("conn-b", "R1", "bob"))
	require.NoError(t, f.svc.StartQuiz(context.Background(), "R1"))

	f.svc.Disconnect("conn-b")
	f.svc.SubmitAnswer("conn-a", "R1", "a", 1000)

	r, ok := f.reg.Get("R1")
	require.True(t, ok)
	require.Equal(t, 1, r.CurrentQuestion, "alice alone resolves the round once bob is gone")
}
