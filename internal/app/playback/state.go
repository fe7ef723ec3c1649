// Package playback provides the playback engine that keeps one audio resource
// bound to the queue's active track.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No session (panel closed or no queue)
	StateLoading              // Acquiring the resource for the active track
	StatePlaying              // Ready and playing
	StatePaused               // Ready and paused
	StateError                // Last acquisition or session failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Ready reports whether a resource is bound.
func (s State) Ready() bool {
	return s == StatePlaying || s == StatePaused
}
