package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/courtside/go/internal/view"
)

// BoardEvent represents the base structure for all events sent to boards
type BoardEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Revision  uint64          `json:"revision"`  // Board revision the event reflects
	Version   uint64          `json:"version"`   // Local commit the event reflects
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of board event
type EventType string

const (
	EventTypeBoardUpdated  EventType = "BoardUpdated"
	EventTypeBoardSnapshot EventType = "BoardSnapshot"
)

// NewBoardEvent wraps a rendered board in an event
func NewBoardEvent(eventType EventType, board view.Board, now time.Time) (*BoardEvent, error) {
	data, err := json.Marshal(board)
	if err != nil {
		return nil, fmt.Errorf("marshal board: %w", err)
	}
	return &BoardEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: now,
		Revision:  board.Revision,
		Version:   board.Version,
		Data:      data,
	}, nil
}

// ParseBoard decodes the board carried by an event
func ParseBoard(event *BoardEvent) (view.Board, error) {
	var board view.Board
	if err := json.Unmarshal(event.Data, &board); err != nil {
		return view.Board{}, fmt.Errorf("unmarshal board: %w", err)
	}
	return board, nil
}
