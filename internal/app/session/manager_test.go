package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackdeck/internal/app/notification"
	"github.com/osa030/trackdeck/internal/app/playback"
	"github.com/osa030/trackdeck/internal/app/session/state"
	"github.com/osa030/trackdeck/internal/domain/track"
	"github.com/osa030/trackdeck/internal/infra/audio"
	"github.com/osa030/trackdeck/internal/infra/history"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeCatalog struct {
	albums map[int64]track.Album
	tracks map[int64][]track.Track
	err    error
}

func (c *fakeCatalog) GetHome(ctx context.Context) (*track.Home, error) {
	if c.err != nil {
		return nil, c.err
	}
	home := &track.Home{}
	for _, a := range c.albums {
		home.RecentAlbums = append(home.RecentAlbums, a)
	}
	return home, nil
}

func (c *fakeCatalog) GetAlbum(ctx context.Context, id int64) (*track.Album, error) {
	if c.err != nil {
		return nil, c.err
	}
	a, ok := c.albums[id]
	if !ok {
		return nil, errors.Newf("album %d not found", id)
	}
	return &a, nil
}

func (c *fakeCatalog) GetAlbumTracks(ctx context.Context, id int64) ([]track.Track, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.tracks[id], nil
}

type recordingStream struct {
	mu     sync.Mutex
	events []string
	last   notification.Status
}

func (s *recordingStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n.Event)
	s.last = n.Status
	return nil
}

func (s *recordingStream) seen(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

func newCatalog() *fakeCatalog {
	mk := func(id int64, n int) track.Track {
		return track.Track{
			ID:          id,
			Title:       "Track",
			Duration:    time.Minute,
			TrackNumber: n,
			URL:         "https://cdn.example.com/tracks/1.mp3",
			AlbumID:     10,
		}
	}
	return &fakeCatalog{
		albums: map[int64]track.Album{
			10: {ID: 10, Title: "Album X", Artist: &track.ArtistSummary{ID: 3, Name: "Quartet"}},
			20: {ID: 20, Title: "Empty"},
			40: {ID: 40, Title: "Bootleg"},
		},
		tracks: map[int64][]track.Track{
			10: {mk(1, 1), mk(2, 2), mk(3, 3)},
			40: {mk(5, 1), {ID: 6, Title: "Lost", TrackNumber: 2}, mk(5, 3), mk(7, 4)},
		},
	}
}

func newTestManager(t *testing.T, hist History) *Manager {
	t.Helper()
	return newTestManagerWithLoader(t, audio.NewClockLoader(audio.ClockConfig{Interval: 10 * time.Millisecond}), hist)
}

func newTestManagerWithLoader(t *testing.T, loader audio.Loader, hist History) *Manager {
	t.Helper()
	m, err := NewManager(Config{Playback: playback.Config{LoadTimeout: time.Second}}, newCatalog(), loader, hist)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func waitPlaying(t *testing.T, m *Manager, id int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := m.GetStatus()
		return s.Playing && s.Track != nil && s.Track.ID == id
	}, waitFor, tick)
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	loader := audio.NewClockLoader(audio.ClockConfig{})

	_, err := NewManager(Config{}, nil, loader, nil)
	assert.Error(t, err)

	_, err = NewManager(Config{}, newCatalog(), nil, nil)
	assert.Error(t, err)
}

func TestManager_OpenAlbumPlaysAndRecords(t *testing.T) {
	hist, err := history.Open(":memory:")
	require.NoError(t, err)
	defer hist.Close()

	m := newTestManager(t, hist)
	stream := &recordingStream{}
	m.GetNotificationManager().Subscribe(stream)

	require.NoError(t, m.OpenAlbum(context.Background(), 10, 2))
	waitPlaying(t, m, 2)

	status := m.GetStatus()
	assert.True(t, status.Open)
	assert.Equal(t, "Album X", status.Album.Title)
	assert.Len(t, status.Tracks, 3)
	assert.Equal(t, int64(2), status.Active.ID)
	assert.Equal(t, time.Minute, status.Duration)

	require.Eventually(t, func() bool { return stream.seen("loaded") }, waitFor, tick)

	require.Eventually(t, func() bool {
		plays, err := m.RecentPlays(context.Background(), 10)
		return err == nil && len(plays) == 1
	}, waitFor, tick)

	albums, err := m.MostPlayed(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, history.AlbumCount{AlbumID: 10, AlbumTitle: "Album X", ArtistName: "Quartet", Plays: 1}, albums[0])
}

func TestManager_PauseResumeRecordsOnce(t *testing.T) {
	hist, err := history.Open(":memory:")
	require.NoError(t, err)
	defer hist.Close()

	m := newTestManager(t, hist)
	ctx := context.Background()

	require.NoError(t, m.OpenAlbum(ctx, 10, 0))
	waitPlaying(t, m, 1)

	require.NoError(t, m.Pause(ctx))
	assert.Equal(t, playback.StatePaused.String(), m.GetStatus().State)
	require.NoError(t, m.Play(ctx))
	assert.True(t, m.GetStatus().Playing)

	require.NoError(t, m.Seek(ctx, 30*time.Second))
	assert.InDelta(t, float64(30*time.Second), float64(m.GetStatus().Position), float64(time.Second))

	require.Eventually(t, func() bool {
		plays, err := m.RecentPlays(ctx, 10)
		return err == nil && len(plays) == 1
	}, waitFor, tick)

	// Give the loop time to process the resume event.
	time.Sleep(50 * time.Millisecond)
	plays, err := m.RecentPlays(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, plays, 1)
}

func TestManager_SelectAndSkip(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, m.OpenAlbum(ctx, 10, 0))
	waitPlaying(t, m, 1)

	require.NoError(t, m.Select(3))
	waitPlaying(t, m, 3)

	require.NoError(t, m.Skip(ctx))
	waitPlaying(t, m, 1)

	err := m.Select(99)
	assert.True(t, errors.Is(err, state.ErrInvalidQueueState))
}

// flakyLoader fails the first load of every track in failOnce.
type flakyLoader struct {
	mu       sync.Mutex
	next     audio.Loader
	failOnce map[int64]bool
	calls    int
}

func (l *flakyLoader) Load(ctx context.Context, t track.Track, onStatus audio.StatusFunc) (audio.Resource, error) {
	l.mu.Lock()
	l.calls++
	fail := l.failOnce[t.ID]
	delete(l.failOnce, t.ID)
	l.mu.Unlock()

	if fail {
		return nil, errors.New("connection reset")
	}
	return l.next.Load(ctx, t, onStatus)
}

func TestManager_SelectRetriesFailedTrack(t *testing.T) {
	loader := &flakyLoader{
		next:     audio.NewClockLoader(audio.ClockConfig{Interval: 10 * time.Millisecond}),
		failOnce: map[int64]bool{2: true},
	}
	m := newTestManagerWithLoader(t, loader, nil)

	require.NoError(t, m.OpenAlbum(context.Background(), 10, 2))
	require.Eventually(t, func() bool {
		return m.GetStatus().State == playback.StateError.String()
	}, waitFor, tick)

	require.NoError(t, m.Select(2))
	waitPlaying(t, m, 2)

	loader.mu.Lock()
	defer loader.mu.Unlock()
	assert.Equal(t, 2, loader.calls)
}

func TestManager_RecordsPlayUnderLoadedAlbum(t *testing.T) {
	hist, err := history.Open(":memory:")
	require.NoError(t, err)
	defer hist.Close()

	m := newTestManager(t, hist)
	ctx := context.Background()

	require.NoError(t, m.OpenAlbum(ctx, 40, 0))
	waitPlaying(t, m, 5)
	require.Eventually(t, func() bool {
		plays, err := m.RecentPlays(ctx, 10)
		return err == nil && len(plays) == 1
	}, waitFor, tick)

	// A play of album 10 processed after album 40 was opened.
	played := track.Track{ID: 1, Title: "Track", AlbumID: 10}
	album := track.Album{ID: 10, Title: "Album X", Artist: &track.ArtistSummary{Name: "Quartet"}}
	m.handlePlaybackEvent(playback.Event{
		Type:       playback.EventLoaded,
		State:      playback.StatePlaying,
		Track:      &played,
		Album:      &album,
		Generation: 1000,
	})

	plays, err := m.RecentPlays(ctx, 10)
	require.NoError(t, err)
	require.Len(t, plays, 2)
	assert.Equal(t, int64(1), plays[0].TrackID)
	assert.Equal(t, int64(10), plays[0].AlbumID)
	assert.Equal(t, "Album X", plays[0].AlbumTitle)
	assert.Equal(t, int64(40), plays[1].AlbumID)
}

func TestManager_OpenAlbumErrors(t *testing.T) {
	tests := []struct {
		name    string
		albumID int64
		trackID int64
		wantIs  error
	}{
		{"empty album", 20, 0, ErrEmptyAlbum},
		{"track not on album", 10, 99, state.ErrInvalidQueueState},
		{"unknown album", 30, 0, nil},
		{"start track filtered out", 40, 6, state.ErrInvalidQueueState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, nil)

			err := m.OpenAlbum(context.Background(), tt.albumID, tt.trackID)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.True(t, errors.Is(err, tt.wantIs), "got %v", err)
			}
			assert.False(t, m.GetStatus().Open)
			assert.Equal(t, playback.StateIdle.String(), m.GetStatus().State)
		})
	}
}

func TestManager_OpenAlbumFiltersTracks(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.OpenAlbum(context.Background(), 40, 0))
	waitPlaying(t, m, 5)

	status := m.GetStatus()
	ids := make([]int64, 0, len(status.Tracks))
	for _, tr := range status.Tracks {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []int64{5, 7}, ids, "unplayable and repeated tracks are dropped")
}

func TestManager_ClosePanelReleases(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	stream := &recordingStream{}
	m.GetNotificationManager().Subscribe(stream)

	require.NoError(t, m.OpenAlbum(ctx, 10, 0))
	waitPlaying(t, m, 1)

	m.ClosePanel()
	status := m.GetStatus()
	assert.False(t, status.Open)
	assert.Equal(t, playback.StateIdle.String(), status.State)
	assert.Nil(t, status.Track)
	assert.Len(t, status.Tracks, 3, "queue is kept")

	require.Eventually(t, func() bool { return stream.seen("released") }, waitFor, tick)
	assert.True(t, errors.Is(m.Play(ctx), playback.ErrNoResource))
}

func TestManager_HistoryDisabled(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.MostPlayed(context.Background(), 5)
	assert.True(t, errors.Is(err, ErrHistoryDisabled))
	_, err = m.RecentPlays(context.Background(), 5)
	assert.True(t, errors.Is(err, ErrHistoryDisabled))
}

func TestManager_Home(t *testing.T) {
	m := newTestManager(t, nil)

	home, err := m.Home(context.Background())
	require.NoError(t, err)
	assert.Len(t, home.RecentAlbums, 3)
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.OpenAlbum(context.Background(), 10, 0))
	waitPlaying(t, m, 1)

	m.Close()
	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}

	// Idempotent
	m.Close()
	assert.Equal(t, 0, m.GetNotificationManager().SubscriberCount())
}
