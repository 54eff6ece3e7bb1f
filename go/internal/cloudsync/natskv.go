package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the JetStream key-value backend
type NATSConfig struct {
	URL           string
	Bucket        string
	Key           string
	History       uint8
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Bucket:        "courtside",
		Key:           DefaultDocumentKey,
		History:       5,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSStore keeps the board in a JetStream key-value bucket. The entry
// revision is the document revision.
type NATSStore struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	config NATSConfig
}

// NewNATSStore connects to NATS and creates the bucket if needed
func NewNATSStore(ctx context.Context, cfg NATSConfig) (*NATSStore, error) {
	opts := []nats.Option{
		nats.Name("courtside"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Courtside scoreboard documents",
		History:     cfg.History,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure key-value bucket: %w", err)
	}

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("key", cfg.Key).
		Msg("using JetStream key-value bucket")

	return &NATSStore{nc: nc, kv: kv, config: cfg}, nil
}

// Load reads the current entry
func (s *NATSStore) Load(ctx context.Context) (Snapshot, error) {
	entry, err := s.kv.Get(ctx, s.config.Key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", s.config.Key, err)
	}
	return s.entryToSnapshot(entry), nil
}

// Push writes the collection, expecting the entry to still be at expected
func (s *NATSStore) Push(ctx context.Context, matches []models.Match, expected uint64) (uint64, error) {
	data, err := EncodeMatches(matches)
	if err != nil {
		return 0, err
	}

	var rev uint64
	if expected == 0 {
		rev, err = s.kv.Create(ctx, s.config.Key, data)
	} else {
		rev, err = s.kv.Update(ctx, s.config.Key, data, expected)
	}
	if err != nil {
		if isWrongRevision(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("put %s: %w", s.config.Key, err)
	}

	log.Debug().
		Str("key", s.config.Key).
		Uint64("revision", rev).
		Int("matches", len(matches)).
		Msg("pushed board to key-value bucket")

	return rev, nil
}

// Watch streams entry updates until ctx is done
func (s *NATSStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	watcher, err := s.kv.Watch(ctx, s.config.Key)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", s.config.Key, err)
	}

	out := make(chan Snapshot, 16)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Stop(); err != nil {
				log.Error().Err(err).Msg("failed to stop key-value watcher")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil {
					continue
				}
				if entry.Operation() != jetstream.KeyValuePut {
					log.Warn().
						Str("key", entry.Key()).
						Str("operation", entry.Operation().String()).
						Msg("ignoring non-put key-value operation")
					continue
				}
				snap := s.entryToSnapshot(entry)
				if !snap.Present {
					continue
				}
				deliverLatest(out, snap)
			}
		}
	}()

	return out, nil
}

// Close drains the NATS connection
func (s *NATSStore) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func (s *NATSStore) entryToSnapshot(entry jetstream.KeyValueEntry) Snapshot {
	matches, ok := DecodeMatches(entry.Value())
	if !ok {
		log.Warn().
			Str("key", entry.Key()).
			Uint64("revision", entry.Revision()).
			Msg("ignoring malformed board document")
		return Snapshot{Revision: entry.Revision()}
	}
	return Snapshot{Matches: matches, Revision: entry.Revision(), Present: true}
}

func isWrongRevision(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
