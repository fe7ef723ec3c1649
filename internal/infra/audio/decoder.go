package audio

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// DecoderConfig holds decoder backend configuration.
type DecoderConfig struct {
	Clock     ClockConfig
	MaxBytes  int64
	UserAgent string
	Client    *http.Client
}

// DecoderLoader fetches track assets and decodes them with beep.
// The play-head is driven by the wall clock and pulls decoded samples on every tick.
type DecoderLoader struct {
	config DecoderConfig
	client *http.Client
}

// NewDecoderLoader creates a new decoder loader.
func NewDecoderLoader(config DecoderConfig) *DecoderLoader {
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 50 << 20
	}
	config.Clock = normalizeClockConfig(config.Clock)
	return &DecoderLoader{config: config, client: client}
}

// Load fetches and decodes the track source.
func (l *DecoderLoader) Load(ctx context.Context, t track.Track, onStatus StatusFunc) (Resource, error) {
	if err := validateSource(t.URL); err != nil {
		return nil, err
	}

	data, contentType, err := l.fetch(ctx, t.URL)
	if err != nil {
		return nil, err
	}

	format := detectFormat(t.URL, contentType)
	if format == "" {
		format = sniffFormat(data)
	}
	src, err := decode(format, data)
	if err != nil {
		return nil, err
	}

	duration := src.Duration()
	if duration <= 0 {
		duration = t.Duration
	}
	if duration <= 0 {
		_ = src.Close()
		return nil, errors.Wrapf(ErrInvalidSource, "track %d has no duration", t.ID)
	}

	zlog.Debug().Msgf("audio: decoded %s track %d (%v, %d Hz)", format, t.ID, duration, src.format.SampleRate)
	return newClockResource(duration, src, onStatus, l.config.Clock), nil
}

func (l *DecoderLoader) fetch(ctx context.Context, raw string) ([]byte, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", errors.Wrapf(ErrInvalidSource, "malformed source URL %q", raw)
	}

	if u.Scheme == "file" {
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, "", errors.Wrapf(ErrFetch, "open %s: %v", u.Path, err)
		}
		defer f.Close()
		data, err := readLimited(f, l.config.MaxBytes)
		return data, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, "", errors.Wrapf(ErrFetch, "failed to create request: %v", err)
	}
	if l.config.UserAgent != "" {
		req.Header.Set("User-Agent", l.config.UserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(ErrFetch, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Wrapf(ErrFetch, "unexpected status %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, l.config.MaxBytes)
	return data, resp.Header.Get("Content-Type"), err
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "read failed: %v", err)
	}
	if int64(len(data)) > limit {
		return nil, errors.Wrapf(ErrFetch, "asset exceeds %d bytes", limit)
	}
	return data, nil
}

// detectFormat picks a codec from the URL extension, falling back to the content type.
func detectFormat(raw, contentType string) string {
	if u, err := url.Parse(raw); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".mp3":
			return "mp3"
		case ".wav":
			return "wav"
		case ".flac":
			return "flac"
		case ".ogg", ".oga":
			return "vorbis"
		}
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/ogg", "audio/vorbis":
		return "vorbis"
	}
	return ""
}

// sniffFormat identifies the codec from the leading bytes.
func sniffFormat(data []byte) string {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return "wav"
	}

	_, fileType, err := tag.Identify(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	switch fileType {
	case tag.MP3:
		return "mp3"
	case tag.FLAC:
		return "flac"
	case tag.OGG:
		return "vorbis"
	}
	return ""
}

func decode(format string, data []byte) (*beepSource, error) {
	rc := &byteSource{Reader: bytes.NewReader(data)}

	var (
		stream beep.StreamSeekCloser
		f      beep.Format
		err    error
	)
	switch format {
	case "mp3":
		stream, f, err = mp3.Decode(rc)
	case "wav":
		stream, f, err = wav.Decode(rc)
	case "flac":
		stream, f, err = flac.Decode(rc)
	case "vorbis":
		stream, f, err = vorbis.Decode(rc)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s decode failed: %v", format, err)
	}

	return &beepSource{stream: stream, format: f, buf: make([][2]float64, 512)}, nil
}

// byteSource makes an in-memory asset seekable for the decoders.
type byteSource struct {
	*bytes.Reader
}

func (b *byteSource) Close() error { return nil }

// beepSource pulls samples from a decoded stream. Nothing is sent to an output
// device: samples are decoded to keep pace with the clock and then dropped.
type beepSource struct {
	stream beep.StreamSeekCloser
	format beep.Format
	buf    [][2]float64
}

// Duration returns the stream length.
func (s *beepSource) Duration() time.Duration {
	return s.format.SampleRate.D(s.stream.Len())
}

// Advance consumes d worth of samples.
func (s *beepSource) Advance(d time.Duration) error {
	remaining := s.format.SampleRate.N(d)
	for remaining > 0 {
		n := min(remaining, len(s.buf))
		got, ok := s.stream.Stream(s.buf[:n])
		remaining -= got
		if !ok || got == 0 {
			if err := s.stream.Err(); err != nil {
				return errors.Wrap(err, "decode failed")
			}
			return nil
		}
	}
	return nil
}

// SeekTo moves the stream to pos, clamped to its length.
func (s *beepSource) SeekTo(pos time.Duration) error {
	n := s.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if n > s.stream.Len() {
		n = s.stream.Len()
	}
	if err := s.stream.Seek(n); err != nil {
		return errors.Wrapf(err, "seek to sample %d", n)
	}
	return nil
}

// Close closes the stream.
func (s *beepSource) Close() error {
	return s.stream.Close()
}
