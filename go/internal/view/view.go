// Package view turns the match collection into what a board shows: the
// filtered, ordered entries and the summary panel.
package view

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mcdev12/courtside/go/internal/models"
)

const (
	// CourtPlaceholder is shown when a match has no court name
	CourtPlaceholder = "Match"
	// EmptySet is shown for a set slot without a score
	EmptySet = "–"
)

// Filter selects which matches are listed
type Filter struct {
	RunningOnly bool `json:"runningOnly"`
}

// Entry is one rendered match row
type Entry struct {
	ID           string             `json:"id"`
	CourtLabel   string             `json:"courtLabel"`
	PlayerName   string             `json:"playerName"`
	OpponentName string             `json:"opponentName"`
	Sets         [3]string          `json:"sets"`
	Status       models.MatchStatus `json:"status"`
	Running      bool               `json:"running"`
	StatusLabel  string             `json:"statusLabel"`
	CreatedAt    int64              `json:"createdAt"`
	Age          string             `json:"age"`
}

// Board is a full render of the collection
type Board struct {
	Entries  []Entry `json:"entries"`
	Summary  Summary `json:"summary"`
	Filter   Filter  `json:"filter"`
	Revision uint64  `json:"revision"`
	Version  uint64  `json:"version"`
}

// Build renders matches: filtered, sorted by creation time ascending, with
// the summary computed over the whole collection.
func Build(matches []models.Match, filter Filter, now time.Time) Board {
	visible := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if filter.RunningOnly && !m.Running() {
			continue
		}
		visible = append(visible, m)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt < visible[j].CreatedAt
	})

	entries := make([]Entry, 0, len(visible))
	for _, m := range visible {
		entries = append(entries, entryFor(m, now))
	}

	return Board{
		Entries: entries,
		Summary: Summarize(matches),
		Filter:  filter,
	}
}

// StatusLabel is the human label for a status. Only a running match is
// labelled running.
func StatusLabel(s models.MatchStatus) string {
	if s == models.MatchStatusRunning {
		return "Running"
	}
	return "Finished"
}

func entryFor(m models.Match, now time.Time) Entry {
	court := m.Court
	if court == "" {
		court = CourtPlaceholder
	}

	var sets [3]string
	for i, s := range m.Sets() {
		if s == "" {
			s = EmptySet
		}
		sets[i] = s
	}

	return Entry{
		ID:           m.ID,
		CourtLabel:   court,
		PlayerName:   m.PlayerName,
		OpponentName: m.OpponentName,
		Sets:         sets,
		Status:       m.Status,
		Running:      m.Running(),
		StatusLabel:  StatusLabel(m.Status),
		CreatedAt:    m.CreatedAt,
		Age:          humanize.RelTime(m.CreatedTime(), now, "ago", "from now"),
	}
}
