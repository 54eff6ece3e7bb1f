package scoreboard

import (
	"fmt"
	"time"

	"github.com/mcdev12/courtside/go/internal/models"
)

// The functions below are the only ways the collection changes. Each takes a
// State and returns a new one; the input is never modified.

// NewMatch builds a running match with empty sets from a validated request
func NewMatch(req AddMatchRequest, id string, createdAt time.Time) (models.Match, error) {
	req = req.Normalize()
	if req.Court == "" || req.PlayerName == "" || req.OpponentName == "" {
		return models.Match{}, ErrInvalidMatch
	}
	if id == "" {
		return models.Match{}, fmt.Errorf("match id is required")
	}
	return models.Match{
		ID:           id,
		Court:        req.Court,
		PlayerName:   req.PlayerName,
		OpponentName: req.OpponentName,
		Status:       models.MatchStatusRunning,
		CreatedAt:    createdAt.UnixMilli(),
	}, nil
}

// AddMatch appends m
func AddMatch(s State, m models.Match) State {
	next := s.Clone()
	next.Matches = append(next.Matches, m)
	return next
}

// EditSets overwrites all three set fields of the match with id
func EditSets(s State, id string, sets SetScores) (State, models.Match, error) {
	sets = sets.Normalize()
	return update(s, id, func(m *models.Match) {
		m.Set1 = sets.Set1
		m.Set2 = sets.Set2
		m.Set3 = sets.Set3
	})
}

// ToggleStatus flips the match between running and finished
func ToggleStatus(s State, id string) (State, models.Match, error) {
	return update(s, id, func(m *models.Match) {
		m.Status = m.Status.Toggled()
	})
}

// RemoveMatch deletes the match with id and nothing else
func RemoveMatch(s State, id string) (State, error) {
	next := State{Matches: make([]models.Match, 0, len(s.Matches)), Revision: s.Revision}
	found := false
	for _, m := range s.Matches {
		if m.ID == id {
			found = true
			continue
		}
		next.Matches = append(next.Matches, m)
	}
	if !found {
		return s, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return next, nil
}

// ClearMatches empties the collection
func ClearMatches(s State) State {
	return State{Matches: []models.Match{}, Revision: s.Revision}
}

func update(s State, id string, fn func(m *models.Match)) (State, models.Match, error) {
	next := s.Clone()
	for i := range next.Matches {
		if next.Matches[i].ID == id {
			fn(&next.Matches[i])
			return next, next.Matches[i], nil
		}
	}
	return s, models.Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
}
