package scoreboard

import (
	"context"

	"github.com/mcdev12/courtside/go/internal/cloudsync"
	"github.com/mcdev12/courtside/go/internal/models"
)

// SyncRepository defines what the app layer needs from the remote document store
type SyncRepository interface {
	Load(ctx context.Context) (cloudsync.Snapshot, error)
	Push(ctx context.Context, matches []models.Match, expected uint64) (uint64, error)
	Watch(ctx context.Context) (<-chan cloudsync.Snapshot, error)
}

// SnapshotCache defines what the app layer needs from the offline cache
type SnapshotCache interface {
	Save(ctx context.Context, snap cloudsync.Snapshot) error
	Load(ctx context.Context) (cloudsync.Snapshot, error)
}

var (
	_ SyncRepository = (*cloudsync.MemoryStore)(nil)
	_ SyncRepository = (*cloudsync.NATSStore)(nil)
	_ SyncRepository = (*cloudsync.PostgresStore)(nil)
	_ SyncRepository = (*cloudsync.DynamoStore)(nil)
)
