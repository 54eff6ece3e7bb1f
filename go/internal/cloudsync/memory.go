package cloudsync

import (
	"context"
	"sync"

	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

// MemoryStore is an in-process document store. It backs single-node boards
// and tests, and behaves like the remote backends: full overwrite, revision
// checked pushes, fan-out of every change to all watchers.
type MemoryStore struct {
	mu       sync.Mutex
	raw      []byte
	revision uint64
	watchers map[chan Snapshot]struct{}
	closed   bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		watchers: make(map[chan Snapshot]struct{}),
	}
}

// Load returns the current document
func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrClosed
	}
	return s.snapshotLocked(), nil
}

// Push replaces the document if expected matches the current revision
func (s *MemoryStore) Push(ctx context.Context, matches []models.Match, expected uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := EncodeMatches(matches)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if expected != s.revision {
		return 0, ErrConflict
	}
	return s.writeLocked(data), nil
}

// PutRaw overwrites the document unconditionally, the way another client of
// the remote store would. The payload is not validated.
func (s *MemoryStore) PutRaw(raw []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.revision
	}
	return s.writeLocked(append([]byte(nil), raw...))
}

// Watch streams every change until ctx is done
func (s *MemoryStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Snapshot, 16)
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}()

	return ch, nil
}

// Revision returns the current document revision
func (s *MemoryStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Close stops all watchers
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for ch := range s.watchers {
		close(ch)
	}
	s.watchers = make(map[chan Snapshot]struct{})
	return nil
}

func (s *MemoryStore) writeLocked(data []byte) uint64 {
	s.raw = data
	s.revision++

	snap := s.snapshotLocked()
	if !snap.Present {
		log.Warn().
			Uint64("revision", s.revision).
			Msg("ignoring malformed document in change stream")
		return s.revision
	}
	for ch := range s.watchers {
		deliverLatest(ch, snap)
	}
	return s.revision
}

func (s *MemoryStore) snapshotLocked() Snapshot {
	if s.revision == 0 {
		return Snapshot{}
	}
	matches, ok := DecodeMatches(s.raw)
	if !ok {
		return Snapshot{Revision: s.revision}
	}
	return Snapshot{Matches: matches, Revision: s.revision, Present: true}
}

// deliverLatest sends snap without blocking, dropping the oldest queued
// snapshot when the buffer is full.
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
