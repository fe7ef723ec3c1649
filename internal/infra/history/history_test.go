package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackdeck/internal/domain/track"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordPlay_Recent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	album := &track.Album{ID: 10, Title: "Album X", Artist: &track.ArtistSummary{ID: 3, Name: "Quartet"}}
	require.NoError(t, s.RecordPlay(ctx, track.Track{ID: 1, Title: "One", AlbumID: 10}, album, base))
	require.NoError(t, s.RecordPlay(ctx, track.Track{ID: 2, Title: "Two", AlbumID: 10}, album, base.Add(time.Minute)))
	require.NoError(t, s.RecordPlay(ctx, track.Track{ID: 5, Title: "Loose", AlbumID: 20}, nil, base.Add(2*time.Minute)))

	plays, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, plays, 2)

	assert.Equal(t, int64(5), plays[0].TrackID)
	assert.Equal(t, int64(20), plays[0].AlbumID, "album id falls back to the track's")
	assert.Empty(t, plays[0].ArtistName)

	assert.Equal(t, "Two", plays[1].TrackTitle)
	assert.Equal(t, "Album X", plays[1].AlbumTitle)
	assert.Equal(t, "Quartet", plays[1].ArtistName)
	assert.True(t, base.Add(time.Minute).Equal(plays[1].PlayedAt))
}

func TestRecordPlay_RequiresTrackID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.RecordPlay(context.Background(), track.Track{}, nil, time.Now()))
}

func TestMostPlayedAlbums(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	a := &track.Album{ID: 1, Title: "A"}
	b := &track.Album{ID: 2, Title: "B", Artist: &track.ArtistSummary{Name: "Band"}}

	plays := []struct {
		album *track.Album
		track int64
	}{
		{a, 11}, {b, 21}, {b, 22}, {a, 12}, {b, 21},
	}
	for i, p := range plays {
		require.NoError(t, s.RecordPlay(ctx, track.Track{ID: p.track, Title: "t", AlbumID: p.album.ID}, p.album, base.Add(time.Duration(i)*time.Second)))
	}

	albums, err := s.MostPlayedAlbums(ctx, 10)
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, AlbumCount{AlbumID: 2, AlbumTitle: "B", ArtistName: "Band", Plays: 3}, albums[0])
	assert.Equal(t, AlbumCount{AlbumID: 1, AlbumTitle: "A", Plays: 2}, albums[1])

	top, err := s.MostPlayedAlbums(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].AlbumID)
}

func TestLimits(t *testing.T) {
	s := openTestStore(t)

	plays, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, plays)

	albums, err := s.MostPlayedAlbums(context.Background(), -1)
	require.NoError(t, err)
	assert.Empty(t, albums)
}

func TestOpen_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordPlay(context.Background(), track.Track{ID: 1, Title: "One", AlbumID: 1}, nil, time.Now()))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	plays, err := reopened.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, plays, 1)
}
