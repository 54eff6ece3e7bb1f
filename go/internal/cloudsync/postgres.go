package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/mcdev12/courtside/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// PostgresConfig holds configuration for the Postgres backend
type PostgresConfig struct {
	DatabaseURL   string        // Postgres DSN, shared by the pool and the listener
	Key           string        // document key
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration // How often to ping the listener connection
}

// DefaultPostgresConfig returns default Postgres configuration
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Key:           DefaultDocumentKey,
		NotifyChannel: "board_documents_changed",
		PingInterval:  90 * time.Second,
	}
}

const createBoardDocumentsTable = `
CREATE TABLE IF NOT EXISTS board_documents (
    key        TEXT PRIMARY KEY,
    payload    JSONB,
    revision   BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps the board as a jsonb row. Writes are revision checked
// and announced with NOTIFY; Watch reloads the row on every notification.
type PostgresStore struct {
	pool   *pgxpool.Pool
	config PostgresConfig
}

// NewPostgresStore opens a pool and ensures the documents table exists
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createBoardDocumentsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create board_documents: %w", err)
	}

	return &PostgresStore{pool: pool, config: cfg}, nil
}

// Load reads the document row
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	var (
		payload  pqtype.NullRawMessage
		revision int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT payload, revision FROM board_documents WHERE key = $1`,
		s.config.Key,
	).Scan(&payload, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load %s: %w", s.config.Key, err)
	}

	rev := sqlutil.FromBigint(revision)
	raw, ok := sqlutil.FromNullRawMessage(payload)
	if !ok {
		return Snapshot{Revision: rev}, nil
	}
	matches, ok := DecodeMatches(raw)
	if !ok {
		log.Warn().
			Str("key", s.config.Key).
			Uint64("revision", rev).
			Msg("ignoring malformed board document")
		return Snapshot{Revision: rev}, nil
	}
	return Snapshot{Matches: matches, Revision: rev, Present: true}, nil
}

// Push replaces the row if it is still at expected, then notifies listeners
// in the same transaction.
func (s *PostgresStore) Push(ctx context.Context, matches []models.Match, expected uint64) (uint64, error) {
	data, err := EncodeMatches(matches)
	if err != nil {
		return 0, err
	}
	payload := sqlutil.ToNullRawMessage(data)

	var revision int64
	err = sqlutil.Run(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if expected == 0 {
			err = tx.QueryRow(ctx, `
                INSERT INTO board_documents (key, payload, revision)
                VALUES ($1, $2, 1)
                ON CONFLICT (key) DO NOTHING
                RETURNING revision
            `, s.config.Key, payload).Scan(&revision)
		} else {
			err = tx.QueryRow(ctx, `
                UPDATE board_documents
                SET payload = $2, revision = revision + 1, updated_at = now()
                WHERE key = $1 AND revision = $3
                RETURNING revision
            `, s.config.Key, payload, sqlutil.ToBigint(expected)).Scan(&revision)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", s.config.Key, err)
		}

		note := s.config.Key + ":" + strconv.FormatInt(revision, 10)
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.config.NotifyChannel, note); err != nil {
			return fmt.Errorf("failed to notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return sqlutil.FromBigint(revision), nil
}

// Watch listens for change notifications and reloads the row on each one
func (s *PostgresStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	l := pq.NewListener(
		s.config.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(s.config.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", s.config.NotifyChannel).
		Msg("listening for notifications")

	out := make(chan Snapshot, 16)
	go func() {
		defer close(out)
		defer func() {
			if err := l.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close listener")
			}
		}()

		pingTicker := time.NewTicker(s.config.PingInterval)
		defer pingTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case note := <-l.Notify:
				// nil notification means the connection was re-established
				// and notifications may have been missed, so reload anyway
				if note != nil && !strings.HasPrefix(note.Extra, s.config.Key+":") {
					continue
				}
				snap, err := s.Load(ctx)
				if err != nil {
					log.Error().Err(err).Msg("failed to reload board after notification")
					continue
				}
				if snap.Present {
					deliverLatest(out, snap)
				}
			case <-pingTicker.C:
				if err := l.Ping(); err != nil {
					log.Error().Err(err).Msg("failed to ping listener")
				}
			}
		}
	}()

	return out, nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
