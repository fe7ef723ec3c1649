// Package state provides the playback queue store: the ordered tracks, the
// active track, the album and the panel flag, observable by change listeners.
package state

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/trackdeck/internal/domain/track"
)

var (
	// ErrInvalidQueueState is returned when a track is not an element of the queue.
	ErrInvalidQueueState = errors.New("invalid queue state")
	// ErrActiveChanged is returned by SetActiveIf when another track became active first.
	ErrActiveChanged = errors.New("active track changed")
)

// ChangeKind represents the kind of store mutation.
type ChangeKind int

const (
	ChangeOpened        ChangeKind = iota // Queue replaced and panel opened
	ChangeClosed                          // Panel closed (queue kept)
	ChangeActiveChanged                   // Active track replaced
	ChangeReselected                      // Active track selected again
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeOpened:
		return "opened"
	case ChangeClosed:
		return "closed"
	case ChangeActiveChanged:
		return "active_changed"
	case ChangeReselected:
		return "reselected"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Tracks   []track.Track
	Active   *track.Track
	Album    *track.Album
	Open     bool
	Revision uint64 // Incremented on every change
}

// Change describes a store mutation delivered to listeners.
type Change struct {
	Kind     ChangeKind
	Snapshot Snapshot
}
