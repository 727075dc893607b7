package room

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the process-wide store of live rooms. It is injectable so
// tests can build isolated registries instead of sharing a singleton.
type Registry interface {
	// Create returns the room for id, creating an empty lobby room if
	// absent. Creating an existing room is not an error.
	Create(id string) *Room
	Get(id string) (*Room, bool)
	// Remove deletes the room and cancels its timer, so no dangling
	// callback can mutate a removed room.
	Remove(id string)
	Rooms() []*Room
	Len() int
}

type memoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry returns an empty in-memory registry.
func NewRegistry() Registry {
	return &memoryRegistry{rooms: make(map[string]*Room)}
}

func (m *memoryRegistry) Create(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[id]; ok {
		return r
	}
	r := newRoom(id)
	m.rooms[id] = r
	log.Info().Str("room_id", id).Msg("room created")
	return r
}

func (m *memoryRegistry) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

func (m *memoryRegistry) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return
	}
	r.stopTimer()
	delete(m.rooms, id)
	log.Info().Str("room_id", id).Msg("room removed")
}

func (m *memoryRegistry) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (m *memoryRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
