// Package session provides the session manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/app/filter"
	"github.com/osa030/trackdeck/internal/app/notification"
	"github.com/osa030/trackdeck/internal/app/playback"
	"github.com/osa030/trackdeck/internal/app/session/state"
	"github.com/osa030/trackdeck/internal/domain/track"
	"github.com/osa030/trackdeck/internal/infra/audio"
	"github.com/osa030/trackdeck/internal/infra/history"
)

var (
	ErrEmptyAlbum      = errors.New("album has no tracks")
	ErrHistoryDisabled = errors.New("play history is disabled")
)

// recordTimeout bounds a single history insert.
const recordTimeout = 2 * time.Second

// Catalog is the part of the catalog client the session uses.
type Catalog interface {
	GetHome(ctx context.Context) (*track.Home, error)
	GetAlbum(ctx context.Context, id int64) (*track.Album, error)
	GetAlbumTracks(ctx context.Context, id int64) ([]track.Track, error)
}

// History is the play log. Optional.
type History interface {
	RecordPlay(ctx context.Context, t track.Track, album *track.Album, at time.Time) error
	MostPlayedAlbums(ctx context.Context, limit int) ([]history.AlbumCount, error)
	Recent(ctx context.Context, limit int) ([]history.Play, error)
}

// Config holds session configuration.
type Config struct {
	Playback playback.Config
	Filters  *filter.Chain // Queue admission; defaults to the built-in filters
}

// Manager owns the queue store, the playback engine and the notification fan-out
// of one app session.
type Manager struct {
	mu sync.RWMutex

	id string

	// Components
	store        *state.Store
	engine       *playback.Engine
	filterChain  *filter.Chain
	catalog      Catalog
	history      History
	notification *notification.Manager

	lastRecorded uint64 // Generation of the last recorded play

	// Channels
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session manager. history may be nil.
func NewManager(cfg Config, catalog Catalog, loader audio.Loader, hist History) (*Manager, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if loader == nil {
		return nil, errors.New("audio loader is required")
	}

	chain := cfg.Filters
	if chain == nil {
		var err error
		if chain, err = filter.NewChainFromConfig(nil); err != nil {
			return nil, errors.Wrap(err, "failed to build filter chain")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := state.New()

	m := &Manager{
		id:           uuid.New().String(),
		store:        store,
		engine:       playback.New(store, loader, cfg.Playback),
		filterChain:  chain,
		catalog:      catalog,
		history:      hist,
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go m.playbackLoop()

	zlog.Info().Msgf("session %s started", m.id)
	return m, nil
}

// ID returns the session ID.
func (m *Manager) ID() string {
	return m.id
}

// Done returns a channel that is closed when the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// OpenAlbum fetches an album and its tracks and opens the ones the filter
// chain admits as the queue, starting at trackID (the first track when zero).
func (m *Manager) OpenAlbum(ctx context.Context, albumID, trackID int64) error {
	album, err := m.catalog.GetAlbum(ctx, albumID)
	if err != nil {
		return errors.Wrapf(err, "failed to get album %d", albumID)
	}
	tracks, err := m.catalog.GetAlbumTracks(ctx, albumID)
	if err != nil {
		return errors.Wrapf(err, "failed to get tracks of album %d", albumID)
	}

	tracks, rejected := m.filterChain.Apply(ctx, tracks)
	for _, r := range rejected {
		zlog.Warn().Msgf("session: dropped track %d %q from album %d: %s", r.Track.ID, r.Track.Title, albumID, r.Code)
	}
	if len(tracks) == 0 {
		return errors.Wrapf(ErrEmptyAlbum, "album %d", albumID)
	}

	start := tracks[0]
	if trackID != 0 {
		found := false
		for _, t := range tracks {
			if t.ID == trackID {
				start, found = t, true
				break
			}
		}
		if !found {
			return errors.Wrapf(state.ErrInvalidQueueState, "track %d is not a playable track of album %d", trackID, albumID)
		}
	}

	return m.OpenQueue(tracks, start, *album)
}

// OpenQueue opens an already resolved queue.
func (m *Manager) OpenQueue(tracks []track.Track, start track.Track, album track.Album) error {
	if err := m.store.Open(tracks, start, album); err != nil {
		return err
	}
	zlog.Info().Msgf("session: opened %q with %d tracks at %q", album.Title, len(tracks), start.Title)
	return nil
}

// Select makes the queued track with the given ID active.
func (m *Manager) Select(trackID int64) error {
	return m.store.SetActiveByID(trackID)
}

// ClosePanel closes the player panel. The engine releases the resource.
func (m *Manager) ClosePanel() {
	m.store.Close()
}

// Play resumes playback.
func (m *Manager) Play(ctx context.Context) error {
	return m.engine.Play(ctx)
}

// Pause pauses playback.
func (m *Manager) Pause(ctx context.Context) error {
	return m.engine.Pause(ctx)
}

// Seek moves the position of the current track.
func (m *Manager) Seek(ctx context.Context, target time.Duration) error {
	return m.engine.Seek(ctx, target)
}

// Skip advances to the next queued track, wrapping at the end.
func (m *Manager) Skip(ctx context.Context) error {
	return m.engine.SkipNext(ctx)
}

// Home returns the catalog home listings.
func (m *Manager) Home(ctx context.Context) (*track.Home, error) {
	return m.catalog.GetHome(ctx)
}

// MostPlayed returns the locally most played albums.
func (m *Manager) MostPlayed(ctx context.Context, limit int) ([]history.AlbumCount, error) {
	if m.history == nil {
		return nil, ErrHistoryDisabled
	}
	return m.history.MostPlayedAlbums(ctx, limit)
}

// RecentPlays returns the latest recorded plays.
func (m *Manager) RecentPlays(ctx context.Context, limit int) ([]history.Play, error) {
	if m.history == nil {
		return nil, ErrHistoryDisabled
	}
	return m.history.Recent(ctx, limit)
}

// GetStatus returns the combined queue and playback status.
func (m *Manager) GetStatus() notification.Status {
	return buildStatus(m.store.Snapshot(), m.engine.Snapshot())
}

// playbackLoop forwards engine events to subscribers until the engine closes.
func (m *Manager) playbackLoop() {
	defer close(m.done)

	for event := range m.engine.Events() {
		m.handlePlaybackEvent(event)
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	if event.Type != playback.EventProgress {
		zlog.Debug().Msgf("playback event: type=%s state=%s gen=%d", event.Type, event.State, event.Generation)
	}

	switch event.Type {
	case playback.EventLoaded, playback.EventStateChanged:
		if event.State == playback.StatePlaying && event.Track != nil {
			m.onTrackStarted(event.Generation, *event.Track, event.Album)
		}
	case playback.EventLoadFailed:
		zlog.Warn().Msgf("session: playback failed: %v", event.Err)
	}

	m.notification.Broadcast(&notification.Notification{
		Event:  event.Type.String(),
		Status: m.GetStatus(),
	})
}

// onTrackStarted records the first Playing transition of each generation under
// the album the track was loaded from.
func (m *Manager) onTrackStarted(gen uint64, t track.Track, album *track.Album) {
	m.mu.Lock()
	if gen <= m.lastRecorded {
		m.mu.Unlock()
		return
	}
	m.lastRecorded = gen
	m.mu.Unlock()

	zlog.Info().Msgf("now playing: %s", t.Title)

	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, recordTimeout)
	defer cancel()
	if err := m.history.RecordPlay(ctx, t, album, time.Now()); err != nil {
		zlog.Error().Msgf("failed to record play of %d: %v", t.ID, err)
	}
}

// Close tears the session down and waits for the playback loop to exit.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.store.Close()
		m.engine.Close()
		<-m.done
		m.cancel()
		m.notification.Close()
		zlog.Info().Msgf("session %s closed", m.id)
	})
}

func buildStatus(q state.Snapshot, p playback.Snapshot) notification.Status {
	return notification.Status{
		State:      p.State.String(),
		Open:       q.Open,
		Album:      q.Album,
		Tracks:     q.Tracks,
		Active:     q.Active,
		Track:      p.Track,
		Position:   p.Position,
		Duration:   p.Duration,
		Playing:    p.Playing,
		Err:        p.Err,
		Generation: p.Generation,
	}
}
