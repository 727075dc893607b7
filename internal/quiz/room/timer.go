package room

import (
	"sync"
	"time"

	"github.com/quizroom/quizroom/internal/quiz/events"
)

// roundTimer drives one question's countdown. Each round gets a fresh
// timer; the handle doubles as the round generation token, so a tick from
// a cancelled round can never touch the room again.
type roundTimer struct {
	cancel chan struct{}
	once   sync.Once
}

func newRoundTimer() *roundTimer {
	return &roundTimer{cancel: make(chan struct{})}
}

func (t *roundTimer) stop() {
	t.once.Do(func() { close(t.cancel) })
}

// startTimerLocked replaces any active countdown with a fresh one for the
// current question. Caller holds the service lock.
func (s *Service) startTimerLocked(r *Room) {
	r.stopTimer()
	t := newRoundTimer()
	r.timer = t
	go s.runTimer(r.ID, t)
}

// runTimer ticks at 1 Hz until the round resolves or the timer is
// cancelled. State is only touched inside tick, under the service lock.
func (s *Service) runTimer(roomID string, t *roundTimer) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.cancel:
			return
		case <-ticker.Chan():
			if s.tick(roomID, t) {
				return
			}
		}
	}
}

// tick decrements the countdown and broadcasts it; at zero it resolves the
// round as a timeout. Returns true once the timer goroutine should exit.
func (s *Service) tick(roomID string, t *roundTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registry.Get(roomID)
	if !ok || r.timer != t {
		// Room deleted, or the round already resolved and this tick
		// belongs to a dead timer.
		return true
	}

	r.TimeLeft--
	s.broadcaster.Broadcast(r.ID, events.NewTimerUpdate(r.TimeLeft))

	if r.TimeLeft <= 0 {
		r.stopTimer()
		s.advanceLocked(r)
		return true
	}
	return false
}
