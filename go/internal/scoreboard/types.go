package scoreboard

import (
	"strings"

	"github.com/mcdev12/courtside/go/internal/models"
)

// AddMatchRequest represents the add-match form
type AddMatchRequest struct {
	Court        string
	PlayerName   string
	OpponentName string
}

// Normalize trims all fields
func (r AddMatchRequest) Normalize() AddMatchRequest {
	return AddMatchRequest{
		Court:        strings.TrimSpace(r.Court),
		PlayerName:   strings.TrimSpace(r.PlayerName),
		OpponentName: strings.TrimSpace(r.OpponentName),
	}
}

// SetScores holds the three set fields edited as one unit
type SetScores struct {
	Set1 string
	Set2 string
	Set3 string
}

// Normalize trims all three sets. Format is not validated here.
func (s SetScores) Normalize() SetScores {
	return SetScores{
		Set1: strings.TrimSpace(s.Set1),
		Set2: strings.TrimSpace(s.Set2),
		Set3: strings.TrimSpace(s.Set3),
	}
}

// SetScoresOf returns the current sets of m
func SetScoresOf(m models.Match) SetScores {
	return SetScores{Set1: m.Set1, Set2: m.Set2, Set3: m.Set3}
}

// State is the owned board: the collection plus the remote revision it was
// last synced with. Version counts local commits and grows on every change,
// including changes whose push failed and so kept the old Revision.
type State struct {
	Matches  []models.Match
	Revision uint64
	Version  uint64
}

// Clone returns a deep copy of s
func (s State) Clone() State {
	return State{Matches: models.CloneMatches(s.Matches), Revision: s.Revision, Version: s.Version}
}

// Find returns the match with id
func (s State) Find(id string) (models.Match, bool) {
	for _, m := range s.Matches {
		if m.ID == id {
			return m, true
		}
	}
	return models.Match{}, false
}
