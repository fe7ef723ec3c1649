// Package audio defines the audio resource boundary used by the playback engine
// and provides the clock and decoder backends.
package audio

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// Errors
var (
	ErrReleased          = errors.New("audio resource released")
	ErrInvalidSource     = errors.New("invalid audio source")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFetch             = errors.New("failed to fetch audio")
)

// Status is a snapshot reported by a resource.
type Status struct {
	Position      time.Duration // Current play-head
	Duration      time.Duration // Zero until known
	Playing       bool
	DidJustFinish bool  // Natural end of the track reached
	Err           error // Non-nil when the resource failed
}

// StatusFunc receives status updates from a resource.
type StatusFunc func(Status)

// Resource is a live, playable audio handle bound to one track.
//
// A resource is returned paused. Status callbacks are never invoked synchronously
// from a Resource method, and stop once Release has been called.
type Resource interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, pos time.Duration) error
	Status() Status
	Release() error
}

// Loader acquires resources for tracks.
type Loader interface {
	Load(ctx context.Context, t track.Track, onStatus StatusFunc) (Resource, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, t track.Track, onStatus StatusFunc) (Resource, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, t track.Track, onStatus StatusFunc) (Resource, error) {
	return f(ctx, t, onStatus)
}
