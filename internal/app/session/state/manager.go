package state

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/trackdeck/internal/domain/queue"
	"github.com/osa030/trackdeck/internal/domain/track"
)

// Store holds the queue state with thread-safe access.
// The track sequence is owned here; other components only read it and call SetActive.
type Store struct {
	mu sync.RWMutex

	queue    queue.Queue
	active   *track.Track
	open     bool
	revision uint64

	listenersMu sync.RWMutex
	listeners   map[string]func(Change)
}

// New creates an empty store with the panel closed.
func New() *Store {
	return &Store{
		listeners: make(map[string]func(Change)),
	}
}

// Open replaces the queue wholesale, makes start active and opens the panel.
// Fails with ErrInvalidQueueState if start is not an element of tracks; the
// previous state is left untouched in that case.
func (s *Store) Open(tracks []track.Track, start track.Track, album track.Album) error {
	q := queue.Queue{
		Tracks: append([]track.Track(nil), tracks...),
		Album:  &album,
	}
	i := q.IndexOf(start.ID)
	if i < 0 {
		return errors.Wrapf(ErrInvalidQueueState, "start track %d is not in the queue", start.ID)
	}

	s.mu.Lock()
	s.queue = q
	active := q.Tracks[i]
	s.active = &active
	s.open = true
	change := s.changeLocked(ChangeOpened)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// Close hides the panel. The queue is kept so that reopening resumes the context.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false
	change := s.changeLocked(ChangeClosed)
	s.mu.Unlock()

	s.notify(change)
}

// SetActive replaces the active track.
// Fails with ErrInvalidQueueState if t is not queued. Selecting the track that is
// already active keeps it and notifies ChangeReselected, so a failed load can be retried.
func (s *Store) SetActive(t track.Track) error {
	s.mu.Lock()
	change, err := s.setActiveLocked(t.ID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(change)
	return nil
}

// SetActiveIf replaces the active track only while the track with ID expected is
// still active. Fails with ErrActiveChanged otherwise.
func (s *Store) SetActiveIf(expected int64, t track.Track) error {
	s.mu.Lock()
	if s.active == nil || s.active.ID != expected {
		s.mu.Unlock()
		return errors.Wrapf(ErrActiveChanged, "expected track %d", expected)
	}
	change, err := s.setActiveLocked(t.ID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(change)
	return nil
}

// setActiveLocked must be called with s.mu held.
func (s *Store) setActiveLocked(id int64) (Change, error) {
	i := s.queue.IndexOf(id)
	if i < 0 {
		return Change{}, errors.Wrapf(ErrInvalidQueueState, "track %d is not in the queue", id)
	}
	if s.active != nil && s.active.ID == id {
		return s.changeLocked(ChangeReselected), nil
	}
	active := s.queue.Tracks[i]
	s.active = &active
	return s.changeLocked(ChangeActiveChanged), nil
}

// SetActiveByID is SetActive for callers holding only a track ID.
func (s *Store) SetActiveByID(id int64) error {
	s.mu.RLock()
	i := s.queue.IndexOf(id)
	var t track.Track
	if i >= 0 {
		t = s.queue.Tracks[i]
	}
	s.mu.RUnlock()

	if i < 0 {
		return errors.Wrapf(ErrInvalidQueueState, "track %d is not in the queue", id)
	}
	return s.SetActive(t)
}

// Tracks returns a copy of the queued tracks.
func (s *Store) Tracks() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]track.Track(nil), s.queue.Tracks...)
}

// Active returns the active track.
func (s *Store) Active() (*track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil, false
	}
	t := *s.active
	return &t, true
}

// Album returns the album the queue belongs to.
func (s *Store) Album() (*track.Album, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queue.Album == nil {
		return nil, false
	}
	a := *s.queue.Album
	return &a, true
}

// IsOpen returns true if the panel is visible.
func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// Next returns the track that follows the given one, wrapping at the end.
func (s *Store) Next(id int64) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Next(id)
}

// Snapshot returns a consistent copy of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers a change listener and returns a function that removes it.
// Listeners run synchronously on the mutating goroutine, after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) func() {
	id := uuid.New().String()

	s.listenersMu.Lock()
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// changeLocked bumps the revision and captures the change.
// Must be called with s.mu held.
func (s *Store) changeLocked(kind ChangeKind) Change {
	s.revision++
	return Change{Kind: kind, Snapshot: s.snapshotLocked()}
}

// snapshotLocked must be called with s.mu held (either RLock or Lock).
func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Tracks:   append([]track.Track(nil), s.queue.Tracks...),
		Open:     s.open,
		Revision: s.revision,
	}
	if s.active != nil {
		t := *s.active
		snap.Active = &t
	}
	if s.queue.Album != nil {
		a := *s.queue.Album
		snap.Album = &a
	}
	return snap
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
