package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service is the live board gateway: it follows the scoreboard and pushes a
// fresh board to every WebSocket connection on each change.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	source            BoardSource
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Clock:            clockwork.NewRealClock(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, source BoardSource) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, config.Clock)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, source),
		source:            source,
	}
}

// Start runs the gateway until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting board gateway")

	changes, unsubscribe := s.source.Subscribe()
	defer unsubscribe()

	go s.connectionManager.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("board gateway shutting down")
			return nil
		case state, ok := <-changes:
			if !ok {
				return nil
			}
			s.connectionManager.BroadcastBoard(state)
		}
	}
}

// RegisterRoutes registers the WebSocket routes
func (s *Service) RegisterRoutes(r *mux.Router) {
	s.wsHandler.RegisterRoutes(r)
	r.HandleFunc("/ws/stats", s.HandleStats).Methods(http.MethodGet)
	log.Info().Msg("board gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "board_gateway"
	return stats
}

// HandleStats reports gateway statistics as JSON
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.GetStats()); err != nil {
		log.Error().Err(err).Msg("failed to write gateway stats")
	}
}
