package playback

import "time"

// trackLength is the duration of the loaded track: the metadata value until the
// resource reports one, then the reported value.
type trackLength struct {
	fallback time.Duration
	reported time.Duration
}

// Seed starts a new track with the metadata duration.
func (l *trackLength) Seed(fallback time.Duration) {
	l.fallback = fallback
	l.reported = 0
}

// Report records a resource-reported duration. Non-positive values are ignored.
func (l *trackLength) Report(d time.Duration) {
	if d > 0 {
		l.reported = d
	}
}

// Value returns the current best-known duration.
func (l trackLength) Value() time.Duration {
	if l.reported > 0 {
		return l.reported
	}
	return l.fallback
}

// Authoritative reports whether the resource has reported a duration.
func (l trackLength) Authoritative() bool {
	return l.reported > 0
}

// Reset forgets both values.
func (l *trackLength) Reset() {
	*l = trackLength{}
}

// Clamp constrains pos to [0, Value()].
func (l trackLength) Clamp(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if d := l.Value(); pos > d {
		return d
	}
	return pos
}
