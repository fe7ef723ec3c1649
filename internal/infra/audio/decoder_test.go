package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// writeSilentWAV encodes d of silence and returns the file path.
func writeSilentWAV(t *testing.T, d time.Duration) string {
	t.Helper()

	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	path := filepath.Join(t.TempDir(), "silence.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format))
	return path
}

func serveFile(t *testing.T, path string) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/silence.wav":
			assert.Equal(t, "trackdeck-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(data)
		case "/stream":
			w.Header().Set("Content-Type", "audio/x-wav")
			_, _ = w.Write(data)
		case "/blob":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(data)
		case "/garbage.wav":
			_, _ = w.Write([]byte("definitely not audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDecoderLoader_Load(t *testing.T) {
	srv := serveFile(t, writeSilentWAV(t, time.Second))
	loader := NewDecoderLoader(DecoderConfig{
		Clock:     ClockConfig{Interval: 10 * time.Millisecond},
		UserAgent: "trackdeck-test",
	})

	t.Run("duration comes from the stream", func(t *testing.T) {
		// Metadata claims 3 minutes; the asset is one second long.
		tr := track.Track{ID: 7, Duration: 3 * time.Minute, URL: srv.URL + "/tracks/silence.wav"}

		res, err := loader.Load(context.Background(), tr, nil)
		require.NoError(t, err)
		defer res.Release()

		status := res.Status()
		assert.Equal(t, time.Second, status.Duration)
		assert.False(t, status.Playing)
	})

	t.Run("format from content type", func(t *testing.T) {
		tr := track.Track{ID: 8, URL: srv.URL + "/stream"}

		res, err := loader.Load(context.Background(), tr, nil)
		require.NoError(t, err)
		defer res.Release()

		assert.Equal(t, time.Second, res.Status().Duration)
	})

	t.Run("not found", func(t *testing.T) {
		tr := track.Track{ID: 9, URL: srv.URL + "/missing.wav"}

		_, err := loader.Load(context.Background(), tr, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetch))
	})

	t.Run("undecodable asset", func(t *testing.T) {
		tr := track.Track{ID: 10, URL: srv.URL + "/garbage.wav"}

		_, err := loader.Load(context.Background(), tr, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	})
}

func TestDecoderLoader_SizeCap(t *testing.T) {
	srv := serveFile(t, writeSilentWAV(t, time.Second))
	loader := NewDecoderLoader(DecoderConfig{MaxBytes: 128, UserAgent: "trackdeck-test"})

	_, err := loader.Load(context.Background(), track.Track{ID: 1, URL: srv.URL + "/tracks/silence.wav"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

func TestDecoderLoader_FileURL(t *testing.T) {
	path := writeSilentWAV(t, 500*time.Millisecond)
	loader := NewDecoderLoader(DecoderConfig{})

	res, err := loader.Load(context.Background(), track.Track{ID: 1, URL: "file://" + path}, nil)
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, 500*time.Millisecond, res.Status().Duration)
}

func TestDecoderLoader_PlaysToFinish(t *testing.T) {
	path := writeSilentWAV(t, 50*time.Millisecond)
	loader := NewDecoderLoader(DecoderConfig{Clock: ClockConfig{Interval: 5 * time.Millisecond}})
	rec := &statusRecorder{}

	res, err := loader.Load(context.Background(), track.Track{ID: 1, URL: "file://" + path}, rec.record)
	require.NoError(t, err)
	defer res.Release()

	require.NoError(t, res.Play(context.Background()))
	require.Eventually(t, rec.finished, time.Second, 5*time.Millisecond)
	assert.NoError(t, rec.last().Err)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"http://x/a.mp3", "", "mp3"},
		{"http://x/a.MP3?sig=1", "", "mp3"},
		{"http://x/a.flac", "", "flac"},
		{"http://x/a.ogg", "", "vorbis"},
		{"http://x/a.wav", "audio/mpeg", "wav"},
		{"http://x/stream", "audio/mpeg", "mp3"},
		{"http://x/stream", "audio/flac; charset=binary", "flac"},
		{"http://x/stream", "text/html", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url+" "+tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, detectFormat(tt.url, tt.contentType))
		})
	}
}

func TestSniffFormat(t *testing.T) {
	pad := func(head string) []byte {
		return append([]byte(head), make([]byte, 256)...)
	}
	wavData, err := os.ReadFile(writeSilentWAV(t, 100*time.Millisecond))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", wavData, "wav"},
		{"id3 tagged mp3", pad("ID3\x03\x00\x00\x00\x00\x00\x00"), "mp3"},
		{"flac", pad("fLaC"), "flac"},
		{"ogg", pad("OggS"), "vorbis"},
		{"too short", []byte("RIFF"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffFormat(tt.data))
		})
	}
}

func TestDecoderLoader_SniffsUnlabelledStream(t *testing.T) {
	srv := serveFile(t, writeSilentWAV(t, time.Second))
	loader := NewDecoderLoader(DecoderConfig{Clock: ClockConfig{Interval: 10 * time.Millisecond}})

	res, err := loader.Load(context.Background(), track.Track{ID: 1, URL: srv.URL + "/blob"}, nil)
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, time.Second, res.Status().Duration)
}
