package scoreboard

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/cloudsync"
	"github.com/mcdev12/courtside/go/internal/models"
)

// flakyRepo wraps a MemoryStore and lets tests fail loads or pushes
type flakyRepo struct {
	*cloudsync.MemoryStore
	mu      sync.Mutex
	loadErr error
	pushErr error
}

func (r *flakyRepo) Load(ctx context.Context) (cloudsync.Snapshot, error) {
	r.mu.Lock()
	err := r.loadErr
	r.mu.Unlock()
	if err != nil {
		return cloudsync.Snapshot{}, err
	}
	return r.MemoryStore.Load(ctx)
}

func (r *flakyRepo) Push(ctx context.Context, matches []models.Match, expected uint64) (uint64, error) {
	r.mu.Lock()
	err := r.pushErr
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return r.MemoryStore.Push(ctx, matches, expected)
}

type memoryCache struct {
	mu   sync.Mutex
	snap cloudsync.Snapshot
}

func (c *memoryCache) Save(_ context.Context, snap cloudsync.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	return nil
}

func (c *memoryCache) Load(context.Context) (cloudsync.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, nil
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("m-%d", n)
	}
}

func newTestApp(t *testing.T, repo SyncRepository, opts ...Option) (*App, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	opts = append([]Option{WithClock(clock), WithIDGenerator(sequentialIDs())}, opts...)
	return NewApp(repo, opts...), clock
}

func TestAddMatchAppendsOneRunningRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cloudsync.NewMemoryStore()
	app, _ := newTestApp(t, store)

	m, err := app.AddMatch(ctx, AddMatchRequest{Court: "Platz 2", PlayerName: "Anna", OpponentName: "Berta"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.ID != "m-1" || m.Status != models.MatchStatusRunning || m.CreatedAt != 1_000_000 {
		t.Fatalf("match = %+v", m)
	}

	matches := app.Matches()
	if len(matches) != 1 || matches[0] != *m {
		t.Fatalf("matches = %+v", matches)
	}

	remote, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load remote: %v", err)
	}
	if remote.Revision != 1 || !reflect.DeepEqual(remote.Matches, matches) {
		t.Fatalf("remote = %+v, want %+v at revision 1", remote, matches)
	}
	if app.State().Revision != 1 {
		t.Fatalf("local revision = %d, want 1", app.State().Revision)
	}
}

func TestAddMatchInvalidIsNoOp(t *testing.T) {
	t.Parallel()

	store := cloudsync.NewMemoryStore()
	app, _ := newTestApp(t, store)

	_, err := app.AddMatch(context.Background(), AddMatchRequest{Court: "  ", PlayerName: "Anna", OpponentName: "Berta"})
	if !errors.Is(err, ErrInvalidMatch) {
		t.Fatalf("err = %v, want ErrInvalidMatch", err)
	}
	if len(app.Matches()) != 0 {
		t.Fatalf("matches = %+v, want none", app.Matches())
	}
	if store.Revision() != 0 {
		t.Fatalf("remote revision = %d, want 0 (nothing pushed)", store.Revision())
	}
}

func TestToggleRemoveAndEdit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, clock := newTestApp(t, cloudsync.NewMemoryStore())

	first, err := app.AddMatch(ctx, AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := app.AddMatch(ctx, AddMatchRequest{Court: "2", PlayerName: "C", OpponentName: "D"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	toggled, err := app.ToggleStatus(ctx, first.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.Status != models.MatchStatusFinished {
		t.Fatalf("status = %q, want finished", toggled.Status)
	}
	toggled, err = app.ToggleStatus(ctx, first.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.Status != models.MatchStatusRunning {
		t.Fatalf("status = %q, want running after two toggles", toggled.Status)
	}

	edited, err := app.EditSets(ctx, second.ID, SetScores{Set1: "6:4", Set2: " 3:6 "})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Set1 != "6:4" || edited.Set2 != "3:6" || edited.Set3 != "" {
		t.Fatalf("sets = %v", edited.Sets())
	}

	if err := app.RemoveMatch(ctx, first.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	matches := app.Matches()
	if len(matches) != 1 || matches[0].ID != second.ID {
		t.Fatalf("matches = %+v, want only %s", matches, second.ID)
	}

	if err := app.RemoveMatch(ctx, "missing"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("remove missing err = %v, want ErrMatchNotFound", err)
	}

	if err := app.ClearMatches(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(app.Matches()) != 0 {
		t.Fatalf("matches = %+v, want none", app.Matches())
	}
}

func TestReceiveOwnEchoIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cloudsync.NewMemoryStore()
	app, _ := newTestApp(t, store)

	if _, err := app.AddMatch(ctx, AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := app.State()

	echo, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if app.Receive(echo) {
		t.Fatal("echo of own push should not be applied")
	}
	if after := app.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
}

func TestReceiveIgnoresStaleAndMalformed(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t, cloudsync.NewMemoryStore())

	if !app.Receive(cloudsync.Snapshot{Matches: []models.Match{{ID: "x"}}, Revision: 5, Present: true}) {
		t.Fatal("expected newer snapshot to apply")
	}
	if app.Receive(cloudsync.Snapshot{Matches: nil, Revision: 4, Present: true}) {
		t.Fatal("stale snapshot applied")
	}
	if app.Receive(cloudsync.Snapshot{Revision: 9}) {
		t.Fatal("malformed snapshot applied")
	}
	state := app.State()
	if state.Revision != 5 || len(state.Matches) != 1 || state.Matches[0].ID != "x" {
		t.Fatalf("state = %+v", state)
	}
}

func TestConflictReplaysCommandOnRemoteBoard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cloudsync.NewMemoryStore()
	app, _ := newTestApp(t, store)

	if _, err := app.AddMatch(ctx, AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// another device writes without this app having seen it
	remote, _ := store.Load(ctx)
	other := append(remote.Matches, models.Match{ID: "other", Court: "9", PlayerName: "X", OpponentName: "Y", Status: models.MatchStatusRunning, CreatedAt: 5})
	if _, err := store.Push(ctx, other, remote.Revision); err != nil {
		t.Fatalf("remote push: %v", err)
	}

	if _, err := app.AddMatch(ctx, AddMatchRequest{Court: "2", PlayerName: "C", OpponentName: "D"}); err != nil {
		t.Fatalf("add after conflict: %v", err)
	}

	state := app.State()
	if state.Revision != 3 {
		t.Fatalf("revision = %d, want 3", state.Revision)
	}
	ids := make([]string, 0, len(state.Matches))
	for _, m := range state.Matches {
		ids = append(ids, m.ID)
	}
	if !reflect.DeepEqual(ids, []string{"m-1", "other", "m-2"}) {
		t.Fatalf("ids = %v, want concurrent remote edit kept", ids)
	}
}

func TestConflictGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	repo := &flakyRepo{MemoryStore: cloudsync.NewMemoryStore(), pushErr: cloudsync.ErrConflict}
	app, _ := newTestApp(t, repo, WithMaxPushAttempts(2))

	_, err := app.AddMatch(context.Background(), AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"})
	if !errors.Is(err, cloudsync.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if len(app.Matches()) != 0 {
		t.Fatalf("matches = %+v, want none", app.Matches())
	}
}

func TestPushFailureKeepsLocalChange(t *testing.T) {
	t.Parallel()

	repo := &flakyRepo{MemoryStore: cloudsync.NewMemoryStore(), pushErr: errors.New("network down")}
	app, _ := newTestApp(t, repo)

	m, err := app.AddMatch(context.Background(), AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	matches := app.Matches()
	if len(matches) != 1 || matches[0].ID != m.ID {
		t.Fatalf("matches = %+v", matches)
	}
	if app.State().Revision != 0 {
		t.Fatalf("revision = %d, want 0", app.State().Revision)
	}
}

func TestStartFallsBackToOfflineCache(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := &memoryCache{snap: cloudsync.Snapshot{
		Matches:  []models.Match{{ID: "cached", Status: models.MatchStatusRunning}},
		Revision: 7,
		Present:  true,
	}}
	repo := &flakyRepo{MemoryStore: cloudsync.NewMemoryStore(), loadErr: errors.New("unreachable")}
	app, _ := newTestApp(t, repo, WithCache(cache))

	done := make(chan error, 1)
	go func() { done <- app.Start(ctx) }()

	deadline := time.After(time.Second)
	for {
		if ms := app.Matches(); len(ms) == 1 && ms[0].ID == "cached" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("cache not restored, matches = %+v", app.Matches())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestStartAppliesRemoteChanges(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := cloudsync.NewMemoryStore()
	cache := &memoryCache{}
	app, _ := newTestApp(t, store, WithCache(cache))
	changes, stop := app.Subscribe()
	defer stop()

	done := make(chan error, 1)
	go func() { done <- app.Start(ctx) }()

	// wait until the watcher is registered by pushing until Start has seen it
	deadline := time.After(2 * time.Second)
	for {
		store.PutRaw([]byte(`[{"id":"remote","court":"5","playerName":"R","opponentName":"S","set1":"","set2":"","set3":"","status":"fertig","createdAt":1}]`))
		select {
		case st := <-changes:
			if len(st.Matches) == 1 && st.Matches[0].ID == "remote" {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("start: %v", err)
				}
				cached, _ := cache.Load(context.Background())
				if !cached.Present || len(cached.Matches) != 1 || cached.Matches[0].ID != "remote" {
					t.Fatalf("cache = %+v, want remote board", cached)
				}
				return
			}
		case <-deadline:
			t.Fatal("remote change not applied")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubscribeSeesLatestState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, _ := newTestApp(t, cloudsync.NewMemoryStore())
	changes, stop := app.Subscribe()

	for i := 0; i < 3; i++ {
		if _, err := app.AddMatch(ctx, AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	select {
	case st := <-changes:
		if len(st.Matches) != 3 {
			t.Fatalf("len = %d, want latest state with 3 matches", len(st.Matches))
		}
	default:
		t.Fatal("expected a queued state")
	}

	stop()
	stop()
	if _, ok := <-changes; ok {
		t.Fatal("expected channel closed after stop")
	}
}

// gatedCache blocks the first Save until release is closed
type gatedCache struct {
	memoryCache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	return &gatedCache{entered: make(chan struct{}), release: make(chan struct{})}
}

func (c *gatedCache) Save(ctx context.Context, snap cloudsync.Snapshot) error {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.entered)
		<-c.release
	}
	return c.memoryCache.Save(ctx, snap)
}

func TestPublishEndsOnNewestState(t *testing.T) {
	t.Parallel()

	cache := newGatedCache()
	app, _ := newTestApp(t, cloudsync.NewMemoryStore(), WithCache(cache))
	changes, stop := app.Subscribe()
	defer stop()

	added := make(chan error, 1)
	go func() {
		_, err := app.AddMatch(context.Background(), AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"})
		added <- err
	}()

	select {
	case <-cache.entered:
	case <-time.After(time.Second):
		t.Fatal("cache save for the local commit never started")
	}

	remote := []models.Match{{ID: "r-1", Court: "2", PlayerName: "C", OpponentName: "D", Status: models.MatchStatusRunning}}
	if !app.Receive(cloudsync.Snapshot{Matches: remote, Revision: 2, Present: true}) {
		t.Fatal("newer remote snapshot was not applied")
	}
	close(cache.release)

	select {
	case err := <-added:
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AddMatch did not return")
	}

	if got := app.State().Revision; got != 2 {
		t.Fatalf("state revision = %d, want 2", got)
	}
	cached, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("cache load: %v", err)
	}
	if cached.Revision != 2 || !reflect.DeepEqual(cached.Matches, remote) {
		t.Fatalf("cached = %+v, want revision 2 with the remote board", cached)
	}

	select {
	case s := <-changes:
		if s.Revision != 2 || !reflect.DeepEqual(s.Matches, remote) {
			t.Fatalf("last notified = %+v, want revision 2", s)
		}
	default:
		t.Fatal("no state notified")
	}
}

func TestVersionGrowsWhenPushFails(t *testing.T) {
	t.Parallel()

	repo := &flakyRepo{MemoryStore: cloudsync.NewMemoryStore(), pushErr: errors.New("offline")}
	app, _ := newTestApp(t, repo)

	before := app.State()
	if _, err := app.AddMatch(context.Background(), AddMatchRequest{Court: "1", PlayerName: "A", OpponentName: "B"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	after := app.State()
	if after.Revision != before.Revision {
		t.Fatalf("revision = %d, want unchanged %d", after.Revision, before.Revision)
	}
	if after.Version <= before.Version {
		t.Fatalf("version = %d, want > %d", after.Version, before.Version)
	}
}
