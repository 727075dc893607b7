// Package gateway is the connection-facing façade: it owns the WebSocket
// connections, decodes client events, hands them to the room orchestrator
// and pushes the resulting events back out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quizroom/quizroom/internal/quiz/events"
	"github.com/quizroom/quizroom/internal/quiz/room"
)

// startQuizTimeout bounds the question fetch a manual start triggers.
const startQuizTimeout = 15 * time.Second

// RoomService is what the gateway needs from the room orchestrator.
type RoomService interface {
	CreateRoom(connID, roomID, username string) error
	JoinRoom(connID, roomID, username string) error
	RejoinRoom(connID, roomID, username string) error
	StartQuiz(ctx context.Context, roomID string) error
	SubmitAnswer(connID, roomID, answer string, timeTakenMs int)
	SendMessage(roomID, username, text string)
	Disconnect(connID string)
}

// Service routes inbound client commands to the room service and maps
// caller-only errors back to the originating connection.
type Service struct {
	cm    *ConnectionManager
	rooms RoomService
}

// NewService wires the dispatcher into the connection manager.
func NewService(cm *ConnectionManager, rooms RoomService) *Service {
	s := &Service{cm: cm, rooms: rooms}
	cm.SetHandler(s)
	return s
}

// HandleMessage decodes one client frame and dispatches it.
func (s *Service) HandleMessage(conn *Connection, data []byte) {
	var cmd events.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("malformed client frame")
		s.cm.SendTo(conn.ID, events.NewQuizError("malformed event"))
		return
	}

	switch cmd.Type {
	case events.CmdCreateRoom:
		// Bind before the roster mutates so the joiner sees its own
		// playerUpdate broadcast.
		s.cm.Bind(conn, cmd.RoomID)
		if err := s.rooms.CreateRoom(conn.ID, cmd.RoomID, cmd.Username); err != nil {
			s.cm.Unbind(conn)
			s.sendJoinError(conn, err)
		}

	case events.CmdJoinRoom:
		s.cm.Bind(conn, cmd.RoomID)
		if err := s.rooms.JoinRoom(conn.ID, cmd.RoomID, cmd.Username); err != nil {
			s.cm.Unbind(conn)
			s.sendJoinError(conn, err)
		}

	case events.CmdRejoinRoom:
		s.cm.Bind(conn, cmd.RoomID)
		if err := s.rooms.RejoinRoom(conn.ID, cmd.RoomID, cmd.Username); err != nil {
			// Rejoining a dead room is silent, matching join-by-link
			// clients that race room teardown.
			s.cm.Unbind(conn)
		}

	case events.CmdStartQuiz:
		// The question fetch can block on the provider; keep the read
		// pump free.
		go s.startQuiz(cmd.RoomID)

	case events.CmdSubmitAnswer:
		s.rooms.SubmitAnswer(conn.ID, cmd.RoomID, cmd.Answer, cmd.TimeTakenMs)

	case events.CmdSendMessage:
		s.rooms.SendMessage(cmd.RoomID, cmd.Username, cmd.Message)

	case events.CmdLeavePreviousRoom:
		s.cm.Unbind(conn)

	default:
		log.Debug().Str("connection_id", conn.ID).Str("type", string(cmd.Type)).Msg("unknown client event")
		s.cm.SendTo(conn.ID, events.NewQuizError("unknown event"))
	}
}

// HandleDisconnect feeds connection loss into roster cleanup.
func (s *Service) HandleDisconnect(connID string) {
	s.rooms.Disconnect(connID)
}

func (s *Service) startQuiz(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), startQuizTimeout)
	defer cancel()
	if err := s.rooms.StartQuiz(ctx, roomID); err != nil {
		// The room already heard about it; this is for the operator.
		log.Warn().Err(err).Str("room_id", roomID).Msg("quiz start failed")
	}
}

func (s *Service) sendJoinError(conn *Connection, err error) {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		s.cm.SendTo(conn.ID, events.NewRoomFull())
	case errors.Is(err, room.ErrRoomNotFound):
		s.cm.SendTo(conn.ID, events.NewQuizError("Room not found"))
	default:
		s.cm.SendTo(conn.ID, events.NewQuizError("join failed"))
	}
}
