package playback

import (
	"time"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventLoadStarted   EventType = iota // Acquisition began for a track
	EventLoaded                         // Resource bound and autoplay requested
	EventLoadFailed                     // Acquisition or session failed
	EventStateChanged                   // Play/pause/idle transition
	EventProgress                       // Position or duration update
	EventTrackFinished                  // Natural end of the track
	EventReleased                       // Session torn down
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventLoadStarted:
		return "load_started"
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventStateChanged:
		return "state_changed"
	case EventProgress:
		return "progress"
	case EventTrackFinished:
		return "track_finished"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type       EventType
	Track      *track.Track // Loaded track (nil when idle)
	Album      *track.Album // Album the track was queued from
	State      State
	Position   time.Duration
	Duration   time.Duration
	Playing    bool
	Err        error
	Generation uint64
}

// Snapshot is the observable engine state.
type Snapshot struct {
	State      State
	Track      *track.Track
	Position   time.Duration
	Duration   time.Duration
	Playing    bool
	Err        error
	Generation uint64
}
