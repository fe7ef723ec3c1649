package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// statusRecorder collects status callbacks.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s.DidJustFinish {
			return true
		}
	}
	return false
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func (r *statusRecorder) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func testTrack(d time.Duration) track.Track {
	return track.Track{ID: 1, Title: "Intro", Duration: d, URL: "http://example.com/intro.mp3"}
}

func TestClockLoader_Load_Validation(t *testing.T) {
	loader := NewClockLoader(ClockConfig{Interval: 10 * time.Millisecond})

	tests := []struct {
		name    string
		track   track.Track
		wantErr error
	}{
		{
			name:    "empty url",
			track:   track.Track{ID: 1, Duration: time.Second},
			wantErr: ErrInvalidSource,
		},
		{
			name:    "relative url",
			track:   track.Track{ID: 1, Duration: time.Second, URL: "intro.mp3"},
			wantErr: ErrInvalidSource,
		},
		{
			name:    "unsupported scheme",
			track:   track.Track{ID: 1, Duration: time.Second, URL: "ftp://example.com/intro.mp3"},
			wantErr: ErrInvalidSource,
		},
		{
			name:    "no duration",
			track:   track.Track{ID: 1, URL: "http://example.com/intro.mp3"},
			wantErr: ErrInvalidSource,
		},
		{
			name:  "valid",
			track: testTrack(time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := loader.Load(context.Background(), tt.track, nil)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			defer res.Release()

			status := res.Status()
			assert.Equal(t, time.Second, status.Duration)
			assert.Equal(t, time.Duration(0), status.Position)
			assert.False(t, status.Playing, "resource must be returned paused")
		})
	}
}

func TestClockLoader_Load_CancelledContext(t *testing.T) {
	loader := NewClockLoader(ClockConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, testTrack(time.Second), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClockResource_PlaysToFinish(t *testing.T) {
	rec := &statusRecorder{}
	res := newClockResource(60*time.Millisecond, nil, rec.record, ClockConfig{Interval: 5 * time.Millisecond})
	defer res.Release()

	require.NoError(t, res.Play(context.Background()))

	require.Eventually(t, rec.finished, time.Second, 5*time.Millisecond)

	last := rec.last()
	assert.True(t, last.DidJustFinish)
	assert.False(t, last.Playing)
	assert.Equal(t, 60*time.Millisecond, last.Position)
	assert.False(t, res.Status().Playing)
}

func TestClockResource_PlayAfterFinishRestarts(t *testing.T) {
	rec := &statusRecorder{}
	res := newClockResource(20*time.Millisecond, nil, rec.record, ClockConfig{Interval: 5 * time.Millisecond})
	defer res.Release()

	require.NoError(t, res.Play(context.Background()))
	require.Eventually(t, rec.finished, time.Second, 5*time.Millisecond)

	require.NoError(t, res.Play(context.Background()))
	status := res.Status()
	assert.True(t, status.Playing)
	assert.Less(t, status.Position, 20*time.Millisecond)
}

func TestClockResource_PauseFreezesPosition(t *testing.T) {
	res := newClockResource(10*time.Second, nil, nil, ClockConfig{Interval: 5 * time.Millisecond})
	defer res.Release()
	ctx := context.Background()

	require.NoError(t, res.Play(ctx))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, res.Pause(ctx))

	frozen := res.Status().Position
	assert.Greater(t, frozen, time.Duration(0))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, res.Status().Position)
	assert.False(t, res.Status().Playing)

	// Idempotent
	require.NoError(t, res.Pause(ctx))
	assert.Equal(t, frozen, res.Status().Position)
}

func TestClockResource_SeekClamps(t *testing.T) {
	res := newClockResource(time.Second, nil, nil, ClockConfig{})
	defer res.Release()
	ctx := context.Background()

	tests := []struct {
		name   string
		target time.Duration
		want   time.Duration
	}{
		{"inside", 400 * time.Millisecond, 400 * time.Millisecond},
		{"negative", -time.Second, 0},
		{"past end", 5 * time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, res.SeekTo(ctx, tt.target))
			assert.Equal(t, tt.want, res.Status().Position)
		})
	}
}

func TestClockResource_Speed(t *testing.T) {
	res := newClockResource(10*time.Second, nil, nil, ClockConfig{Interval: time.Second, Speed: 4})
	defer res.Release()

	require.NoError(t, res.Play(context.Background()))
	time.Sleep(50 * time.Millisecond)

	assert.GreaterOrEqual(t, res.Status().Position, 150*time.Millisecond)
}

func TestClockResource_ReleaseStopsCallbacks(t *testing.T) {
	rec := &statusRecorder{}
	res := newClockResource(10*time.Second, nil, rec.record, ClockConfig{Interval: 5 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, res.Play(ctx))
	require.Eventually(t, func() bool { return rec.count() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, res.Release())
	require.NoError(t, res.Release())

	time.Sleep(20 * time.Millisecond)
	n := rec.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rec.count())

	assert.ErrorIs(t, res.Play(ctx), ErrReleased)
	assert.ErrorIs(t, res.Pause(ctx), ErrReleased)
	assert.ErrorIs(t, res.SeekTo(ctx, 0), ErrReleased)
}

// fakeSource records what the clock feeds it.
type fakeSource struct {
	mu       sync.Mutex
	advanced time.Duration
	seeks    []time.Duration
	failAt   time.Duration
	closed   bool
}

func (s *fakeSource) Advance(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanced += d
	if s.failAt > 0 && s.advanced >= s.failAt {
		return errors.New("corrupt frame")
	}
	return nil
}

func (s *fakeSource) SeekTo(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, pos)
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestClockResource_SourceFailureReported(t *testing.T) {
	rec := &statusRecorder{}
	src := &fakeSource{failAt: 20 * time.Millisecond}
	res := newClockResource(time.Second, src, rec.record, ClockConfig{Interval: 5 * time.Millisecond})
	defer res.Release()

	require.NoError(t, res.Play(context.Background()))

	require.Eventually(t, func() bool { return rec.last().Err != nil }, time.Second, 5*time.Millisecond)
	assert.False(t, res.Status().Playing)
}

func TestClockResource_SourceSeekAndClose(t *testing.T) {
	src := &fakeSource{}
	res := newClockResource(time.Second, src, nil, ClockConfig{})

	require.NoError(t, res.SeekTo(context.Background(), 300*time.Millisecond))
	require.NoError(t, res.Release())

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, src.seeks)
	assert.True(t, src.closed)
}
