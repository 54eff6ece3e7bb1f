package view

import (
	"strconv"
	"strings"

	"github.com/mcdev12/courtside/go/internal/models"
)

// Summary is the aggregate panel shown under the board
type Summary struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Finished int `json:"finished"`
	SetsHome int `json:"setsHome"` // sets won by the player side
	SetsAway int `json:"setsAway"` // sets won by the opponent side
}

// ParseSet parses a set score "A:B". ok is false for anything else.
func ParseSet(s string) (home, away int, ok bool) {
	left, right, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	home, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, false
	}
	away, err = strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return 0, 0, false
	}
	return home, away, true
}

// Summarize counts matches and tallies set wins across the whole collection.
// Ties and unparseable sets are skipped.
func Summarize(matches []models.Match) Summary {
	sum := Summary{Total: len(matches)}
	for _, m := range matches {
		switch {
		case m.Running():
			sum.Running++
		case m.Finished():
			sum.Finished++
		}
		for _, set := range m.Sets() {
			if set == "" {
				continue
			}
			home, away, ok := ParseSet(set)
			if !ok {
				continue
			}
			switch {
			case home > away:
				sum.SetsHome++
			case away > home:
				sum.SetsAway++
			}
		}
	}
	return sum
}
