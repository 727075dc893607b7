package room

import "errors"

var (
	// ErrRoomNotFound is returned when a join or rejoin targets a room
	// that does not exist. Reported to the caller only.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull is returned when a join would exceed the roster cap.
	// Reported to the caller only.
	ErrRoomFull = errors.New("room full")

	// ErrNoQuestions is returned when the question source came back empty
	// and the session could not start. The room is also told directly.
	ErrNoQuestions = errors.New("no questions available")
)
