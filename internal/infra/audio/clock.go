package audio

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// Source is fed decoded audio while a clock resource advances.
type Source interface {
	Advance(d time.Duration) error
	SeekTo(pos time.Duration) error
	Close() error
}

// ClockConfig holds clock resource configuration.
type ClockConfig struct {
	Interval time.Duration // Status callback period while playing
	Speed    float64       // Playback rate multiplier
}

// ClockLoader acquires wall-clock driven resources that take their duration
// from track metadata. Nothing is decoded.
type ClockLoader struct {
	config ClockConfig
}

// NewClockLoader creates a new clock loader.
func NewClockLoader(config ClockConfig) *ClockLoader {
	return &ClockLoader{config: normalizeClockConfig(config)}
}

// Load validates the track source and returns a paused resource.
func (l *ClockLoader) Load(ctx context.Context, t track.Track, onStatus StatusFunc) (Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateSource(t.URL); err != nil {
		return nil, err
	}
	if t.Duration <= 0 {
		return nil, errors.Wrapf(ErrInvalidSource, "track %d has no duration", t.ID)
	}
	return newClockResource(t.Duration, nil, onStatus, l.config), nil
}

// clockResource advances a play-head against the wall clock.
type clockResource struct {
	mu sync.Mutex

	duration time.Duration
	position time.Duration // Position at anchor
	anchor   time.Time     // Wall time playback (re)started
	fed      time.Duration // Audio handed to source so far
	playing  bool
	released bool

	source   Source
	onStatus StatusFunc
	config   ClockConfig

	timerCancel func()
}

func newClockResource(duration time.Duration, source Source, onStatus StatusFunc, config ClockConfig) *clockResource {
	if onStatus == nil {
		onStatus = func(Status) {}
	}
	return &clockResource{
		duration: duration,
		source:   source,
		onStatus: onStatus,
		config:   normalizeClockConfig(config),
	}
}

// Play starts or resumes the play-head. Playing from the end restarts the track.
func (r *clockResource) Play(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}
	if r.playing {
		return nil
	}
	if r.position >= r.duration {
		r.position = 0
		if err := r.seekSourceLocked(0); err != nil {
			return err
		}
	}

	r.anchor = toWallTime(time.Now())
	r.playing = true
	r.startTickerLocked()
	return nil
}

// Pause freezes the play-head.
func (r *clockResource) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}
	if !r.playing {
		return nil
	}

	r.position = r.positionLocked(toWallTime(time.Now()))
	r.playing = false
	r.stopTickerLocked()
	return nil
}

// SeekTo moves the play-head, clamped to [0, duration].
func (r *clockResource) SeekTo(ctx context.Context, pos time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}
	if pos < 0 {
		pos = 0
	}
	if pos > r.duration {
		pos = r.duration
	}

	r.position = pos
	r.anchor = toWallTime(time.Now())
	return r.seekSourceLocked(pos)
}

// Status returns the current status.
func (r *clockResource) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Status{
		Position: r.positionLocked(toWallTime(time.Now())),
		Duration: r.duration,
		Playing:  r.playing,
	}
}

// Release stops the ticker and closes the source. Safe to call more than once.
func (r *clockResource) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil
	}
	r.released = true
	r.playing = false
	r.stopTickerLocked()

	if r.source != nil {
		if err := r.source.Close(); err != nil {
			return errors.Wrap(err, "failed to close audio source")
		}
	}
	return nil
}

// tick computes the play-head, feeds the source and reports status.
func (r *clockResource) tick() {
	r.mu.Lock()
	if r.released || !r.playing {
		r.mu.Unlock()
		return
	}

	now := toWallTime(time.Now())
	pos := r.positionLocked(now)
	finished := pos >= r.duration
	if finished {
		pos = r.duration
	}

	if err := r.feedSourceLocked(pos); err != nil {
		r.position = pos
		r.playing = false
		r.stopTickerLocked()
		r.mu.Unlock()

		zlog.Debug().Msgf("audio: source failed at %v: %v", pos, err)
		r.onStatus(Status{Position: pos, Duration: r.duration, Err: err})
		return
	}

	status := Status{Position: pos, Duration: r.duration, Playing: true}
	if finished {
		r.position = r.duration
		r.playing = false
		r.stopTickerLocked()
		status.Playing = false
		status.DidJustFinish = true
	}
	r.mu.Unlock()

	r.onStatus(status)
}

// positionLocked must be called with r.mu held.
func (r *clockResource) positionLocked(now time.Time) time.Duration {
	if !r.playing {
		return r.position
	}
	elapsed := time.Duration(float64(now.Sub(r.anchor)) * r.config.Speed)
	pos := r.position + elapsed
	if pos > r.duration {
		return r.duration
	}
	return pos
}

func (r *clockResource) feedSourceLocked(pos time.Duration) error {
	if r.source == nil || pos <= r.fed {
		return nil
	}
	if err := r.source.Advance(pos - r.fed); err != nil {
		return err
	}
	r.fed = pos
	return nil
}

func (r *clockResource) seekSourceLocked(pos time.Duration) error {
	r.fed = pos
	if r.source == nil {
		return nil
	}
	if err := r.source.SeekTo(pos); err != nil {
		return errors.Wrap(err, "failed to seek audio source")
	}
	return nil
}

// startTickerLocked must be called with r.mu held.
func (r *clockResource) startTickerLocked() {
	r.stopTickerLocked()
	r.timerCancel = startWallClockTicker(r.config.Interval, r.tick)
}

// stopTickerLocked must be called with r.mu held.
func (r *clockResource) stopTickerLocked() {
	if r.timerCancel != nil {
		r.timerCancel()
		r.timerCancel = nil
	}
}

// startWallClockTicker invokes callback every interval until cancelled.
// Returns a cancel function.
func startWallClockTicker(interval time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				callback()
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
// Differences are then calculated using wall clock time.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

func validateSource(raw string) error {
	if raw == "" {
		return errors.Wrap(ErrInvalidSource, "empty source URL")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return errors.Wrapf(ErrInvalidSource, "malformed source URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
		return errors.Wrapf(ErrInvalidSource, "unsupported scheme %q", u.Scheme)
	}
	return nil
}

func normalizeClockConfig(c ClockConfig) ClockConfig {
	if c.Interval <= 0 {
		c.Interval = 250 * time.Millisecond
	}
	if c.Speed <= 0 {
		c.Speed = 1
	}
	return c
}
