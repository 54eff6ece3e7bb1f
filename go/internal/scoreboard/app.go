package scoreboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/cloudsync"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxPushAttempts bounds how often a command is replayed after a
// revision conflict.
const DefaultMaxPushAttempts = 3

// Option configures an App
type Option func(*App)

// WithClock sets the clock used for creation timestamps.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// WithCache sets the offline snapshot cache
func WithCache(cache SnapshotCache) Option {
	return func(a *App) { a.cache = cache }
}

// WithIDGenerator overrides how match ids are generated
func WithIDGenerator(newID func() string) Option {
	return func(a *App) { a.newID = newID }
}

// WithMaxPushAttempts sets how many times a conflicting command is tried
func WithMaxPushAttempts(n int) Option {
	return func(a *App) {
		if n > 0 {
			a.maxPushAttempts = n
		}
	}
}

// App owns the board state. It is the only mutation entry point; local
// commands and remote snapshots both end in commit, which refreshes the
// offline cache and notifies subscribers.
type App struct {
	repo            SyncRepository
	cache           SnapshotCache
	clock           clockwork.Clock
	newID           func() string
	maxPushAttempts int
	tracer          trace.Tracer

	// writeMu serializes local commands so each push carries the revision
	// its command was computed from
	writeMu sync.Mutex

	mu    sync.RWMutex
	state State

	// pubMu guards the publisher: one goroutine at a time saves the cache
	// and notifies, always from the newest state, never going backwards
	pubMu      sync.Mutex
	publishing bool
	published  uint64

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
}

type command func(State) (State, models.Match, error)

// NewApp creates a new scoreboard App
func NewApp(repo SyncRepository, opts ...Option) *App {
	a := &App{
		repo:            repo,
		clock:           clockwork.NewRealClock(),
		newID:           func() string { return uuid.New().String() },
		maxPushAttempts: DefaultMaxPushAttempts,
		tracer:          otel.Tracer("github.com/mcdev12/courtside/go/internal/scoreboard"),
		state:           State{Matches: []models.Match{}},
		subs:            make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start loads the initial board and then applies remote snapshots until ctx
// is done. When the remote store can't be read the offline cache is used.
func (a *App) Start(ctx context.Context) error {
	snap, err := a.repo.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load remote board, trying offline cache")
		a.restoreFromCache(ctx)
	} else {
		a.adopt(ctx, snap)
	}

	updates, err := a.repo.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch remote board: %w", err)
	}

	log.Info().
		Uint64("revision", a.State().Revision).
		Int("matches", len(a.State().Matches)).
		Msg("scoreboard started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("remote change stream closed")
			}
			a.Receive(snap)
		}
	}
}

// Receive applies a remote snapshot. Only snapshots strictly newer than the
// local revision are applied, so the echo of our own push is a no-op.
func (a *App) Receive(snap cloudsync.Snapshot) bool {
	if !snap.Present {
		log.Debug().Uint64("revision", snap.Revision).Msg("ignoring absent or malformed remote board")
		return false
	}

	a.mu.Lock()
	if snap.Revision <= a.state.Revision {
		a.mu.Unlock()
		return false
	}
	a.state = State{
		Matches:  models.CloneMatches(snap.Matches),
		Revision: snap.Revision,
		Version:  a.state.Version + 1,
	}
	a.mu.Unlock()

	log.Debug().
		Uint64("revision", snap.Revision).
		Int("matches", len(snap.Matches)).
		Msg("applied remote board")

	a.publish(context.Background())
	return true
}

// State returns a copy of the current board
func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Clone()
}

// Matches returns a copy of the current collection
func (a *App) Matches() []models.Match {
	return a.State().Matches
}

// GetMatch returns the match with id
func (a *App) GetMatch(id string) (*models.Match, error) {
	m, ok := a.State().Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return &m, nil
}

// AddMatch creates a running match with empty sets
func (a *App) AddMatch(ctx context.Context, req AddMatchRequest) (*models.Match, error) {
	m, err := NewMatch(req, a.newID(), a.clock.Now())
	if err != nil {
		return nil, err
	}

	created, err := a.apply(ctx, "AddMatch", m.ID, func(s State) (State, models.Match, error) {
		return AddMatch(s, m), m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add match: %w", err)
	}

	log.Info().
		Str("match_id", created.ID).
		Str("court", created.Court).
		Msg("added match")
	return &created, nil
}

// EditSets overwrites the three set scores of a match
func (a *App) EditSets(ctx context.Context, id string, sets SetScores) (*models.Match, error) {
	m, err := a.apply(ctx, "EditSets", id, func(s State) (State, models.Match, error) {
		return EditSets(s, id, sets)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to edit sets: %w", err)
	}
	return &m, nil
}

// ToggleStatus flips a match between running and finished
func (a *App) ToggleStatus(ctx context.Context, id string) (*models.Match, error) {
	m, err := a.apply(ctx, "ToggleStatus", id, func(s State) (State, models.Match, error) {
		return ToggleStatus(s, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to toggle status: %w", err)
	}

	log.Info().
		Str("match_id", id).
		Str("status", string(m.Status)).
		Msg("toggled match status")
	return &m, nil
}

// RemoveMatch deletes a match
func (a *App) RemoveMatch(ctx context.Context, id string) error {
	_, err := a.apply(ctx, "RemoveMatch", id, func(s State) (State, models.Match, error) {
		next, err := RemoveMatch(s, id)
		return next, models.Match{}, err
	})
	if err != nil {
		return fmt.Errorf("failed to remove match: %w", err)
	}

	log.Info().Str("match_id", id).Msg("removed match")
	return nil
}

// ClearMatches empties the board
func (a *App) ClearMatches(ctx context.Context) error {
	_, err := a.apply(ctx, "ClearMatches", "", func(s State) (State, models.Match, error) {
		return ClearMatches(s), models.Match{}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}

	log.Info().Msg("cleared all matches")
	return nil
}

// Subscribe returns a channel of board changes and a func to stop them.
// A slow subscriber only ever sees the latest state.
func (a *App) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

// apply runs cmd against the current state and pushes the result. On a
// revision conflict the remote board is reloaded and cmd is replayed on top
// of it, so concurrent remote edits are kept.
func (a *App) apply(ctx context.Context, op, matchID string, cmd command) (models.Match, error) {
	ctx, span := a.tracer.Start(ctx, "scoreboard."+op, trace.WithAttributes(
		attribute.String("match.id", matchID),
	))
	defer span.End()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	for attempt := 1; ; attempt++ {
		cur := a.State()
		next, m, err := cmd(cur)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return models.Match{}, err
		}

		rev, err := a.push(ctx, next, cur.Revision)
		switch {
		case err == nil:
			next.Revision = rev
			a.commitIf(ctx, next, func(current State) bool { return rev > current.Revision })
			span.SetAttributes(attribute.Int64("board.revision", int64(rev)))
			return m, nil

		case errors.Is(err, cloudsync.ErrConflict):
			if attempt >= a.maxPushAttempts {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return models.Match{}, err
			}
			log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Uint64("revision", cur.Revision).
				Msg("remote board changed, replaying command")
			if err := a.refresh(ctx); err != nil {
				span.RecordError(err)
				return models.Match{}, err
			}

		default:
			// local-first: the change stands even if the remote write failed
			log.Error().
				Err(err).
				Str("op", op).
				Uint64("revision", cur.Revision).
				Msg("failed to push board, keeping local change")
			span.RecordError(err)
			next.Revision = cur.Revision
			a.commitIf(ctx, next, func(current State) bool { return current.Revision == cur.Revision })
			return m, nil
		}
	}
}

func (a *App) push(ctx context.Context, next State, expected uint64) (uint64, error) {
	ctx, span := a.tracer.Start(ctx, "scoreboard.push", trace.WithAttributes(
		attribute.Int64("board.expected_revision", int64(expected)),
		attribute.Int("board.matches", len(next.Matches)),
	))
	defer span.End()

	rev, err := a.repo.Push(ctx, next.Matches, expected)
	if err != nil {
		span.RecordError(err)
	}
	return rev, err
}

// refresh adopts the current remote board after a conflict
func (a *App) refresh(ctx context.Context) error {
	snap, err := a.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload remote board: %w", err)
	}
	a.adopt(ctx, snap)
	return nil
}

// adopt replaces local state with snap regardless of revision order. A
// malformed remote document only contributes its revision so the next push
// can overwrite it.
func (a *App) adopt(ctx context.Context, snap cloudsync.Snapshot) {
	a.mu.Lock()
	version := a.state.Version + 1
	if snap.Present {
		a.state = State{Matches: models.CloneMatches(snap.Matches), Revision: snap.Revision}
	} else {
		a.state.Revision = snap.Revision
	}
	a.state.Version = version
	a.mu.Unlock()

	a.publish(ctx)
}

func (a *App) restoreFromCache(ctx context.Context) {
	if a.cache == nil {
		return
	}
	snap, err := a.cache.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read offline cache")
		return
	}
	if !snap.Present {
		return
	}
	log.Info().
		Uint64("revision", snap.Revision).
		Int("matches", len(snap.Matches)).
		Msg("restored board from offline cache")
	a.adopt(ctx, snap)
}

func (a *App) commitIf(ctx context.Context, next State, ok func(current State) bool) {
	a.mu.Lock()
	if !ok(a.state) {
		a.mu.Unlock()
		return
	}
	version := a.state.Version + 1
	a.state = next.Clone()
	a.state.Version = version
	a.mu.Unlock()

	a.publish(ctx)
}

// publish brings the offline cache and subscribers up to the current state.
// If another goroutine is already publishing it picks up this change before
// it stops, so side effects are applied in commit order and end on the
// newest state.
func (a *App) publish(ctx context.Context) {
	a.pubMu.Lock()
	if a.publishing {
		a.pubMu.Unlock()
		return
	}
	a.publishing = true

	for {
		// read under pubMu so a commit racing with the exit check is seen
		next := a.State()
		if next.Version <= a.published {
			a.publishing = false
			a.pubMu.Unlock()
			return
		}
		a.pubMu.Unlock()

		a.saveCache(ctx, next)
		a.notify(next)

		a.pubMu.Lock()
		a.published = next.Version
	}
}

func (a *App) saveCache(ctx context.Context, next State) {
	if a.cache == nil {
		return
	}
	err := a.cache.Save(context.WithoutCancel(ctx), cloudsync.Snapshot{
		Matches:  next.Matches,
		Revision: next.Revision,
		Present:  true,
	})
	if err != nil {
		log.Error().Err(err).Uint64("revision", next.Revision).Msg("failed to update offline cache")
	}
}

func (a *App) notify(next State) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	for _, ch := range a.subs {
		select {
		case ch <- next.Clone():
			continue
		default:
		}
		// replace the stale queued state
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next.Clone():
		default:
		}
	}
}
