package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/courtside/go/internal/scoreboard"
	"github.com/mcdev12/courtside/go/internal/view"
	"github.com/rs/zerolog/log"
)

// BoardSource is what the gateway needs from the scoreboard
type BoardSource interface {
	State() scoreboard.State
	Subscribe() (<-chan scoreboard.State, func())
}

// WebSocketHandler handles WebSocket upgrade requests for live boards
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	source            BoardSource
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, source BoardSource) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		source:            source,
	}
}

// HandleBoardConnection upgrades to a live board. ?running=1 selects the
// running-only view.
func (h *WebSocketHandler) HandleBoardConnection(w http.ResponseWriter, r *http.Request) {
	filter := FilterFromRequest(r)

	// On failure the upgrader has already written an HTTP error
	if err := h.connectionManager.UpgradeConnection(w, r, filter, h.source.State); err != nil {
		log.Error().
			Err(err).
			Bool("running_only", filter.RunningOnly).
			Msg("failed to upgrade WebSocket connection")
	}
}

// RegisterRoutes registers WebSocket routes with a router
func (h *WebSocketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/board", h.HandleBoardConnection).Methods(http.MethodGet)
}

// FilterFromRequest reads the running-only toggle from the query string
func FilterFromRequest(r *http.Request) view.Filter {
	switch r.URL.Query().Get("running") {
	case "1", "true", "on", "yes":
		return view.Filter{RunningOnly: true}
	}
	return view.Filter{}
}
