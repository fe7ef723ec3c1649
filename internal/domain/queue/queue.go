// Package queue provides the Queue domain entity.
package queue

import (
	"time"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// Queue is an ordered list of tracks tied to one album.
// Insertion order is play order.
type Queue struct {
	Tracks []track.Track
	Album  *track.Album
}

// IndexOf returns the position of the track with the given ID, or -1.
func (q *Queue) IndexOf(id int64) int {
	if q == nil {
		return -1
	}
	for i, t := range q.Tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether a track with the given ID is queued.
func (q *Queue) Contains(id int64) bool {
	return q.IndexOf(id) >= 0
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Tracks)
}

// Next returns the track after the one with the given ID.
// The last track wraps to the first. Returns false if id is not queued.
func (q *Queue) Next(id int64) (track.Track, bool) {
	i := q.IndexOf(id)
	if i < 0 {
		return track.Track{}, false
	}
	return q.Tracks[(i+1)%len(q.Tracks)], true
}

// TrackIDs returns all track IDs in play order.
func (q *Queue) TrackIDs() []int64 {
	ids := make([]int64, q.Len())
	for i, t := range q.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the summed metadata duration of all tracks.
func (q *Queue) TotalDuration() time.Duration {
	var total time.Duration
	if q == nil {
		return total
	}
	for _, t := range q.Tracks {
		total += t.Duration
	}
	return total
}
