package scoreboard

import "errors"

var (
	// ErrInvalidMatch is returned when court, player or opponent is empty
	ErrInvalidMatch = errors.New("court, player and opponent are required")
	// ErrMatchNotFound is returned when no match has the given id
	ErrMatchNotFound = errors.New("match not found")
)
