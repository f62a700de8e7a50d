// Package watchlist implements the persistent watch-list: a durable set of
// watched games keyed by (id, source).
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rewired-gh/gamepulse/internal/logger"
	"github.com/rewired-gh/gamepulse/internal/models"
)

// DefaultKey is the durable key holding the serialized watch-list.
const DefaultKey = "gameinfo_watchlist"

// ErrNotFound is returned by a Backend when the key holds no value.
var ErrNotFound = models.ErrNotFound

// Backend is durable storage for one serialized watch-list.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Store is the in-memory watch-list backed by a durable Backend. Every
// mutation writes the full list before returning.
type Store struct {
	mu      sync.Mutex
	backend Backend
	key     string
	entries []models.WatchEntry
	now     func() time.Time
	timeout time.Duration

	notifyMu  sync.Mutex
	subMu     sync.Mutex
	listeners map[int]func([]models.WatchEntry)
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp AddedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New creates a Store over backend and loads the persisted list.
func New(backend Backend, key string, opts ...Option) *Store {
	if key == "" {
		key = DefaultKey
	}
	s := &Store{
		backend:   backend,
		key:       key,
		now:       time.Now,
		timeout:   5 * time.Second,
		listeners: make(map[int]func([]models.WatchEntry)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Load()
	return s
}

// Load re-reads the persisted list, replacing the in-memory one. Missing or
// corrupt data yields an empty list.
func (s *Store) Load() []models.WatchEntry {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var entries []models.WatchEntry
	data, err := s.backend.Read(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		entries = []models.WatchEntry{}
	case err != nil:
		logger.Warn("Failed to read watch-list %s, starting empty: %v", s.key, err)
		entries = []models.WatchEntry{}
	default:
		entries = decode(data)
	}

	s.mu.Lock()
	s.entries = entries
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap
}

// decode parses a persisted list. Malformed payloads yield an empty list;
// invalid or duplicate elements are dropped.
func decode(data []byte) []models.WatchEntry {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("Discarding corrupt watch-list: %v", err)
		return []models.WatchEntry{}
	}

	entries := make([]models.WatchEntry, 0, len(raw))
	for _, r := range raw {
		var e models.WatchEntry
		if err := json.Unmarshal(r, &e); err != nil {
			logger.Debug("Dropping malformed watch entry: %v", err)
			continue
		}
		if err := e.Validate(); err != nil {
			logger.Debug("Dropping invalid watch entry %s: %v", e.Key(), err)
			continue
		}
		if indexOf(entries, e.ID, e.Source) >= 0 {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Add inserts entry unless an entry with the same (id, source) exists. The
// list is persisted either way. A zero AddedAt is stamped with the current
// time.
func (s *Store) Add(entry models.WatchEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid watch entry: %w", err)
	}

	s.mu.Lock()
	changed := false
	if indexOf(s.entries, entry.ID, entry.Source) < 0 {
		if entry.AddedAt == 0 {
			entry.AddedAt = s.now().UnixMilli()
		}
		next := make([]models.WatchEntry, len(s.entries), len(s.entries)+1)
		copy(next, s.entries)
		s.entries = append(next, entry)
		changed = true
	}
	err := s.persistLocked()
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	s.notifyMu.Unlock()
	return err
}

// Remove deletes the entry matching (id, source) if present. The list is
// persisted either way.
func (s *Store) Remove(id string, source models.Source) error {
	s.mu.Lock()
	changed := false
	if i := indexOf(s.entries, id, source); i >= 0 {
		next := make([]models.WatchEntry, 0, len(s.entries)-1)
		next = append(next, s.entries[:i]...)
		s.entries = append(next, s.entries[i+1:]...)
		changed = true
	}
	err := s.persistLocked()
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	s.notifyMu.Unlock()
	return err
}

// Toggle removes the entry if watched and adds it otherwise. It reports
// whether the entry is watched afterwards.
func (s *Store) Toggle(entry models.WatchEntry) (bool, error) {
	if s.Contains(entry.ID, entry.Source) {
		return false, s.Remove(entry.ID, entry.Source)
	}
	return true, s.Add(entry)
}

// Contains reports whether (id, source) is watched.
func (s *Store) Contains(id string, source models.Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.entries, id, source) >= 0
}

// Entries returns a copy of the current list in insertion order.
func (s *Store) Entries() []models.WatchEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// BySource returns the entries of one source.
func (s *Store) BySource(source models.Source) []models.WatchEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.WatchEntry{}
	for _, e := range s.entries {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of watched entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers fn to be called synchronously after every change, in
// mutation order. Each listener receives its own copy of the entries. fn
// must not mutate the store. The returned func
// unregisters it.
func (s *Store) Subscribe(fn func(entries []models.WatchEntry)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(snap []models.WatchEntry) {
	s.subMu.Lock()
	fns := make([]func([]models.WatchEntry), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(slices.Clone(snap))
	}
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal watch-list: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Write(ctx, s.key, data); err != nil {
		logger.Error("Failed to persist watch-list: %v", err)
		return fmt.Errorf("failed to persist watch-list: %w", err)
	}
	return nil
}

func (s *Store) snapshotLocked() []models.WatchEntry {
	out := make([]models.WatchEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func indexOf(entries []models.WatchEntry, id string, source models.Source) int {
	for i, e := range entries {
		if e.ID == id && e.Source == source {
			return i
		}
	}
	return -1
}
