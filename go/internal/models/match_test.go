package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMatchStatusToggled(t *testing.T) {
	t.Parallel()

	if got := MatchStatusRunning.Toggled(); got != MatchStatusFinished {
		t.Fatalf("running toggled = %q, want %q", got, MatchStatusFinished)
	}
	if got := MatchStatusFinished.Toggled(); got != MatchStatusRunning {
		t.Fatalf("finished toggled = %q, want %q", got, MatchStatusRunning)
	}
	if got := MatchStatusRunning.Toggled().Toggled(); got != MatchStatusRunning {
		t.Fatalf("double toggle = %q, want %q", got, MatchStatusRunning)
	}
	for _, unknown := range []MatchStatus{"", "pausiert"} {
		if got := unknown.Toggled(); got != MatchStatusRunning {
			t.Fatalf("%q toggled = %q, want %q", unknown, got, MatchStatusRunning)
		}
	}
}

func TestMatchWireFieldNames(t *testing.T) {
	t.Parallel()

	m := Match{
		ID:           "m-1",
		Court:        "Platz 1",
		PlayerName:   "Anna",
		OpponentName: "Berta",
		Set1:         "6:4",
		Status:       MatchStatusRunning,
		CreatedAt:    1700000000000,
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"id":"m-1"`,
		`"court":"Platz 1"`,
		`"playerName":"Anna"`,
		`"opponentName":"Berta"`,
		`"set1":"6:4"`,
		`"set2":""`,
		`"set3":""`,
		`"status":"laufend"`,
		`"createdAt":1700000000000`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("encoded match %s missing %s", data, want)
		}
	}
}

func TestCloneMatchesNilIsEmpty(t *testing.T) {
	t.Parallel()

	out := CloneMatches(nil)
	if out == nil {
		t.Fatal("expected non-nil slice")
	}
	data, _ := json.Marshal(out)
	if string(data) != "[]" {
		t.Fatalf("encoded = %s, want []", data)
	}
}
