// Package cloudsync mirrors the match collection to an external key-value
// document and streams remote changes back.
package cloudsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/courtside/go/internal/models"
)

// DefaultDocumentKey is the single named reference the board is stored under
const DefaultDocumentKey = "matches"

var (
	// ErrConflict is returned by Push when the remote revision moved on
	ErrConflict = errors.New("remote revision conflict")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("sync store closed")
)

// Snapshot is one observed value of the remote document.
// Present is false when the key does not exist yet.
type Snapshot struct {
	Matches  []models.Match
	Revision uint64
	Present  bool
}

// EncodeMatches renders the collection in the wire shape (always a JSON array)
func EncodeMatches(matches []models.Match) ([]byte, error) {
	data, err := json.Marshal(models.CloneMatches(matches))
	if err != nil {
		return nil, fmt.Errorf("encode matches: %w", err)
	}
	return data, nil
}

// DecodeMatches parses a remote payload. ok is false for anything that is not
// a JSON array of match records; callers ignore such payloads.
func DecodeMatches(raw []byte) (matches []models.Match, ok bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	if err := json.Unmarshal(trimmed, &matches); err != nil {
		return nil, false
	}
	return models.CloneMatches(matches), true
}
