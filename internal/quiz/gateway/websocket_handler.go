package gateway

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler exposes the upgrade endpoint for quiz connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleQuizConnection upgrades a client to WebSocket. Room membership is
// established afterwards by createRoom/joinRoom/rejoinRoom commands.
func (h *WebSocketHandler) HandleQuizConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// HandleConnectionStats reports live connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"connections":%d}`, h.connectionManager.ConnectionCount())
}

// RegisterRoutes mounts the WebSocket endpoints on the mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleQuizConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
