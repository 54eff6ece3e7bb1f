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
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/scoreboard"
	"github.com/mcdev12/courtside/go/internal/view"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections for live boards
type ConnectionManager struct {
	// Connection pools organized by board filter, so each distinct view is
	// rendered once per change
	boardConnections map[view.Filter]map[*Connection]bool
	mu               sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig
	clock  clockwork.Clock

	// Board states to broadcast
	broadcastCh chan scoreboard.State
}

// Connection represents a WebSocket connection to a board
type Connection struct {
	ID      string
	Filter  view.Filter
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // boards only send keepalives
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		boardConnections: make(map[view.Filter]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan scoreboard.State, 64),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case state := <-cm.broadcastCh:
			cm.handleBroadcast(state)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and sends the
// current board as the first message. The connection is registered before
// current is read, so no change between the two can be missed.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, filter view.Filter, current func() scoreboard.State) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Filter:      filter,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	now := cm.clock.Now()
	event, err := NewBoardEvent(EventTypeBoardSnapshot, RenderBoard(current(), filter, now), now)
	if err == nil {
		var data []byte
		if data, err = json.Marshal(event); err == nil {
			cm.enqueue(connection, data)
		} else {
			err = fmt.Errorf("marshal snapshot event: %w", err)
		}
	}
	if err != nil {
		cm.unregisterConnection(connection)
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Bool("running_only", filter.RunningOnly).
		Msg("WebSocket connection established")

	return nil
}

// enqueue queues data for conn unless it was unregistered or its buffer is
// full
func (cm *ConnectionManager) enqueue(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.boardConnections[conn.Filter][conn] {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

// BroadcastBoard queues a board state for every connection
func (cm *ConnectionManager) BroadcastBoard(state scoreboard.State) {
	select {
	case cm.broadcastCh <- state:
	default:
		log.Warn().Uint64("revision", state.Revision).Msg("broadcast channel full, dropping board update")
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	runningOnly := 0
	for filter, connections := range cm.boardConnections {
		total += len(connections)
		if filter.RunningOnly {
			runningOnly += len(connections)
		}
	}

	return map[string]interface{}{
		"total_connections":        total,
		"running_only_connections": runningOnly,
	}
}

// RenderBoard builds the board for filter and stamps the state revision and
// version
func RenderBoard(state scoreboard.State, filter view.Filter, now time.Time) view.Board {
	board := view.Build(state.Matches, filter, now)
	board.Revision = state.Revision
	board.Version = state.Version
	return board
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.boardConnections[conn.Filter] == nil {
		cm.boardConnections[conn.Filter] = make(map[*Connection]bool)
	}
	cm.boardConnections[conn.Filter][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.boardConnections[conn.Filter])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.boardConnections[conn.Filter]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.boardConnections, conn.Filter)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Msg("connection unregistered")
		}
	}
}

func (cm *ConnectionManager) handleBroadcast(state scoreboard.State) {
	now := cm.clock.Now()
	sent := 0
	var slow []*Connection

	// Sends happen under the read lock so unregisterConnection can't close
	// a Send channel mid-broadcast
	cm.mu.RLock()
	for filter, connections := range cm.boardConnections {
		event, err := NewBoardEvent(EventTypeBoardUpdated, RenderBoard(state, filter, now), now)
		if err != nil {
			log.Error().Err(err).Msg("failed to build board event")
			continue
		}
		// Marshal the event once per filter
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal event for broadcast")
			continue
		}

		for conn := range connections {
			select {
			case conn.Send <- data:
				sent++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	// Connection is slow/dead, close it
	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Uint64("revision", state.Revision).
		Int("connections", sent).
		Msg("board broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.boardConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		// boards are read-only; client messages are only logged
		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
