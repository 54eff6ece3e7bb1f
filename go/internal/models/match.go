package models

import (
	"time"
)

// MatchStatus represents the lifecycle state of a match.
// The values are part of the synced document and must not change.
type MatchStatus string

const (
	MatchStatusRunning  MatchStatus = "laufend"
	MatchStatusFinished MatchStatus = "fertig"
)

// Toggled returns the other status. Anything that is not running,
// including an unknown value from a remote document, toggles to running.
func (s MatchStatus) Toggled() MatchStatus {
	if s == MatchStatusRunning {
		return MatchStatusFinished
	}
	return MatchStatusRunning
}

// Match represents one tracked tennis match on a court.
// Field names are the wire contract with the remote document store.
type Match struct {
	ID           string      `json:"id"`
	Court        string      `json:"court"`
	PlayerName   string      `json:"playerName"`
	OpponentName string      `json:"opponentName"`
	Set1         string      `json:"set1"`
	Set2         string      `json:"set2"`
	Set3         string      `json:"set3"`
	Status       MatchStatus `json:"status"`
	CreatedAt    int64       `json:"createdAt"` // epoch milliseconds
}

// Sets returns the three set scores in order
func (m Match) Sets() [3]string {
	return [3]string{m.Set1, m.Set2, m.Set3}
}

// Running reports whether the match is still in play
func (m Match) Running() bool {
	return m.Status == MatchStatusRunning
}

// Finished reports whether the match is marked finished. A match with an
// unknown status is neither running nor finished.
func (m Match) Finished() bool {
	return m.Status == MatchStatusFinished
}

// CreatedTime converts CreatedAt to a time.Time
func (m Match) CreatedTime() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// CloneMatches returns a copy of the slice so callers can't alias owned state.
// A nil input yields an empty, non-nil slice so it encodes as [].
func CloneMatches(matches []Match) []Match {
	out := make([]Match, len(matches))
	copy(out, matches)
	return out
}
