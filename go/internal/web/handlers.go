// Package web serves the board as HTML pages plus a small JSON API.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/gateway"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/mcdev12/courtside/go/internal/scoreboard"
	"github.com/mcdev12/courtside/go/internal/view"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// ScoreboardApp is what the pages need from the application state
type ScoreboardApp interface {
	State() scoreboard.State
	GetMatch(id string) (*models.Match, error)
	AddMatch(ctx context.Context, req scoreboard.AddMatchRequest) (*models.Match, error)
	EditSets(ctx context.Context, id string, sets scoreboard.SetScores) (*models.Match, error)
	ToggleStatus(ctx context.Context, id string) (*models.Match, error)
	RemoveMatch(ctx context.Context, id string) error
	ClearMatches(ctx context.Context) error
}

// Handler serves the HTML interaction layer
type Handler struct {
	app   ScoreboardApp
	clock clockwork.Clock
	pages *template.Template
}

// NewHandler parses the embedded page templates
func NewHandler(app ScoreboardApp, clock clockwork.Clock) (*Handler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{app: app, clock: clock, pages: pages}, nil
}

// RegisterRoutes registers page and API routes with a router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.HandleBoard).Methods(http.MethodGet)
	r.HandleFunc("/matches", h.HandleAddMatch).Methods(http.MethodPost)
	r.HandleFunc("/matches/clear", h.HandleClearConfirm).Methods(http.MethodGet)
	r.HandleFunc("/matches/clear", h.HandleClear).Methods(http.MethodPost)
	r.HandleFunc("/matches/{id}/sets", h.HandleEditSetsForm).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}/sets", h.HandleEditSets).Methods(http.MethodPost)
	r.HandleFunc("/matches/{id}/toggle", h.HandleToggle).Methods(http.MethodPost)
	r.HandleFunc("/matches/{id}/delete", h.HandleDeleteConfirm).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}/delete", h.HandleDelete).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/matches", h.HandleListMatches).Methods(http.MethodGet)
	api.HandleFunc("/board", h.HandleGetBoard).Methods(http.MethodGet)
}

type boardPage struct {
	Title    string
	Board    view.Board
	Player   string
	Opponent string
}

type editPage struct {
	Title       string
	Match       models.Match
	Sets        scoreboard.SetScores
	RunningOnly bool
}

type confirmPage struct {
	Title       string
	Question    string
	Action      string
	Back        string
	RunningOnly bool
}

// HandleBoard renders the board page
func (h *Handler) HandleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.render(w, "board.html", boardPage{
		Title:    "Board",
		Board:    h.board(r),
		Player:   q.Get("player"),
		Opponent: q.Get("opponent"),
	})
}

// HandleAddMatch adds a match and returns to the board with the names kept
func (h *Handler) HandleAddMatch(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	req := scoreboard.AddMatchRequest{
		Court:        r.PostForm.Get("court"),
		PlayerName:   r.PostForm.Get("player"),
		OpponentName: r.PostForm.Get("opponent"),
	}.Normalize()

	if _, err := h.app.AddMatch(r.Context(), req); err != nil {
		if !errors.Is(err, scoreboard.ErrInvalidMatch) {
			h.fail(w, err)
			return
		}
		log.Debug().Err(err).Msg("ignored incomplete match")
	}

	back := url.Values{}
	if req.PlayerName != "" {
		back.Set("player", req.PlayerName)
	}
	if req.OpponentName != "" {
		back.Set("opponent", req.OpponentName)
	}
	if runningOnly(r) {
		back.Set("running", "1")
	}
	redirect(w, r, back)
}

// HandleEditSetsForm renders the set editor for one match
func (h *Handler) HandleEditSetsForm(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.GetMatch(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "edit.html", editPage{
		Title:       "Edit sets",
		Match:       *m,
		Sets:        scoreboard.SetScoresOf(*m),
		RunningOnly: runningOnly(r),
	})
}

// HandleEditSets stores all three sets, unless the form was cancelled
func (h *Handler) HandleEditSets(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	if r.PostForm.Get("action") == "save" {
		sets := scoreboard.SetScores{
			Set1: r.PostForm.Get("set1"),
			Set2: r.PostForm.Get("set2"),
			Set3: r.PostForm.Get("set3"),
		}.Normalize()
		if _, err := h.app.EditSets(r.Context(), mux.Vars(r)["id"], sets); err != nil {
			h.fail(w, err)
			return
		}
	}
	redirect(w, r, filterValues(r))
}

// HandleToggle flips the status of a match
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	if _, err := h.app.ToggleStatus(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	redirect(w, r, filterValues(r))
}

// HandleDeleteConfirm asks before deleting a match
func (h *Handler) HandleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.GetMatch(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "confirm.html", confirmPage{
		Title:       "Delete match",
		Question:    "Delete " + m.PlayerName + " vs " + m.OpponentName + "?",
		Action:      "/matches/" + m.ID + "/delete",
		Back:        "/" + encodeQuery(filterValues(r)),
		RunningOnly: runningOnly(r),
	})
}

// HandleDelete removes a match once confirmed
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	if confirmed(r) {
		if err := h.app.RemoveMatch(r.Context(), mux.Vars(r)["id"]); err != nil {
			h.fail(w, err)
			return
		}
	}
	redirect(w, r, filterValues(r))
}

// HandleClearConfirm asks before clearing the board
func (h *Handler) HandleClearConfirm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "confirm.html", confirmPage{
		Title:       "Clear matches",
		Question:    "Delete all matches?",
		Action:      "/matches/clear",
		Back:        "/" + encodeQuery(filterValues(r)),
		RunningOnly: runningOnly(r),
	})
}

// HandleClear empties the board once confirmed
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	if confirmed(r) {
		if err := h.app.ClearMatches(r.Context()); err != nil {
			h.fail(w, err)
			return
		}
	}
	redirect(w, r, filterValues(r))
}

// HandleListMatches returns the collection in its stored shape
func (h *Handler) HandleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.CloneMatches(h.app.State().Matches))
}

// HandleGetBoard returns the rendered board
func (h *Handler) HandleGetBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.board(r))
}

func (h *Handler) board(r *http.Request) view.Board {
	return gateway.RenderBoard(h.app.State(), gateway.FilterFromRequest(r), h.clock.Now())
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.pages.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Str("template", name).Msg("failed to write page")
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scoreboard.ErrMatchNotFound):
		http.Error(w, "match not found", http.StatusNotFound)
	case errors.Is(err, scoreboard.ErrInvalidMatch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// parseForm parses a POST body, answering 400 when it can't be read
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid form")
		http.Error(w, "invalid form", http.StatusBadRequest)
		return false
	}
	return true
}

// runningOnly reads the filter from a parsed form first, then the query
func runningOnly(r *http.Request) bool {
	if v := r.PostForm.Get("running"); v != "" {
		return v == "1"
	}
	return gateway.FilterFromRequest(r).RunningOnly
}

func confirmed(r *http.Request) bool {
	return r.PostForm.Get("confirm") == "yes"
}

func filterValues(r *http.Request) url.Values {
	v := url.Values{}
	if runningOnly(r) {
		v.Set("running", "1")
	}
	return v
}

func encodeQuery(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func redirect(w http.ResponseWriter, r *http.Request, v url.Values) {
	http.Redirect(w, r, "/"+encodeQuery(v), http.StatusSeeOther)
}
