package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quizroom/quizroom/internal/quiz/events"
)

// Handler receives connection lifecycle callbacks from the manager.
type Handler interface {
	HandleMessage(conn *Connection, data []byte)
	HandleDisconnect(connID string)
}

// ConnectionManager owns every live WebSocket connection and the per-room
// connection pools the orchestrator broadcasts into.
type ConnectionManager struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	roomConns map[string]map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  Handler

	broadcastCh chan broadcastMessage
}

// Connection is one client connection. RoomID is the pool it is currently
// joined to, empty while in no room; it is guarded by the manager mutex.
type Connection struct {
	ID     string
	RoomID string
	Conn   *websocket.Conn
	Send   chan []byte

	manager     *ConnectionManager
	connectedAt time.Time
}

// ConnectionConfig holds WebSocket tuning and the origin allowlist.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins restricts the upgrade handshake. Empty means allow
	// all, for local development.
	AllowedOrigins []string
}

type broadcastMessage struct {
	roomID string
	connID string // set: deliver to this connection only
	event  events.Event
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// NewConnectionManager creates a manager with empty pools.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	cm := &ConnectionManager{
		conns:       make(map[string]*Connection),
		roomConns:   make(map[string]map[*Connection]bool),
		config:      config,
		broadcastCh: make(chan broadcastMessage, 256),
	}
	cm.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     cm.checkOrigin,
	}
	return cm
}

// SetHandler wires the inbound dispatcher. Must be called before the first
// upgrade.
func (cm *ConnectionManager) SetHandler(h Handler) {
	cm.handler = h
}

func (cm *ConnectionManager) checkOrigin(r *http.Request) bool {
	if len(cm.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range cm.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	log.Warn().Str("origin", origin).Msg("websocket upgrade blocked by origin allowlist")
	return false
}

// Start drains the broadcast channel until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case msg := <-cm.broadcastCh:
			cm.handleBroadcast(msg)
		}
	}
}

// UpgradeConnection upgrades an HTTP request and starts the connection's
// read/write pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		Conn:        ws,
		Send:        make(chan []byte, 256),
		manager:     cm,
		connectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.conns[conn.ID] = conn
	cm.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	log.Info().Str("connection_id", conn.ID).Msg("websocket connection established")
	return nil
}

// Bind joins the connection to a room's pool, leaving any previous pool.
func (cm *ConnectionManager) Bind(conn *Connection, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.unbindLocked(conn)
	if cm.roomConns[roomID] == nil {
		cm.roomConns[roomID] = make(map[*Connection]bool)
	}
	cm.roomConns[roomID][conn] = true
	conn.RoomID = roomID
}

// Unbind detaches the connection from its room pool. The player's roster
// entry is untouched; this only stops event delivery.
func (cm *ConnectionManager) Unbind(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unbindLocked(conn)
}

func (cm *ConnectionManager) unbindLocked(conn *Connection) {
	if conn.RoomID == "" {
		return
	}
	if pool, ok := cm.roomConns[conn.RoomID]; ok {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConns, conn.RoomID)
		}
	}
	conn.RoomID = ""
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, registered := cm.conns[conn.ID]
	if registered {
		delete(cm.conns, conn.ID)
		cm.unbindLocked(conn)
		close(conn.Send)
	}
	cm.mu.Unlock()

	if registered {
		log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
		if cm.handler != nil {
			cm.handler.HandleDisconnect(conn.ID)
		}
	}
}

// Broadcast queues an event for every connection in the room's pool.
// Fire-and-forget: if the queue is full the event is dropped.
func (cm *ConnectionManager) Broadcast(roomID string, ev events.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{roomID: roomID, event: ev}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping event")
	}
}

// SendTo queues an event for one connection only.
func (cm *ConnectionManager) SendTo(connID string, ev events.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{connID: connID, event: ev}:
	default:
		log.Warn().Str("connection_id", connID).Msg("broadcast channel full, dropping event")
	}
}

func (cm *ConnectionManager) handleBroadcast(msg broadcastMessage) {
	cm.mu.RLock()
	var targets []*Connection
	if msg.connID != "" {
		if conn, ok := cm.conns[msg.connID]; ok {
			targets = append(targets, conn)
		}
	} else {
		for conn := range cm.roomConns[msg.roomID] {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(msg.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for delivery")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Slow or dead consumer; drop it rather than stall the room.
			log.Warn().Str("connection_id", conn.ID).Msg("send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// ConnectionCount reports live connections, for the health endpoint.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// writePump sends queued messages and keepalive pings to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client frames and feeds them to the dispatcher. Exit
// means the connection is gone and triggers disconnect cleanup.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		if c.manager.handler != nil {
			c.manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
