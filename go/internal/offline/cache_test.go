package offline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mcdev12/courtside/go/internal/cloudsync"
	"github.com/mcdev12/courtside/go/internal/models"
)

func openTempCache(t *testing.T) *Cache {
	t.Helper()

	cache, err := Open(filepath.Join(t.TempDir(), "board.db"), "")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() {
		if err := cache.Close(); err != nil {
			t.Fatalf("close cache: %v", err)
		}
	})
	return cache
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" ", "matches"); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestLoadEmptyCache(t *testing.T) {
	t.Parallel()

	cache := openTempCache(t)
	snap, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Present {
		t.Fatal("empty cache should not be present")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := openTempCache(t)

	first := cloudsync.Snapshot{
		Matches: []models.Match{
			{ID: "a", Court: "Center", PlayerName: "Anna", OpponentName: "Berta", Set1: "6:4", Status: models.MatchStatusRunning, CreatedAt: 10},
		},
		Revision: 3,
		Present:  true,
	}
	if err := cache.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := cloudsync.Snapshot{Matches: nil, Revision: 4, Present: true}
	if err := cache.Save(ctx, second); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Present {
		t.Fatal("expected cached snapshot")
	}
	if got.Revision != 4 {
		t.Fatalf("revision = %d, want 4", got.Revision)
	}
	if len(got.Matches) != 0 {
		t.Fatalf("matches = %+v, want empty", got.Matches)
	}
}
