package ws

import (
	"time"

	"github.com/osa030/trackdeck/internal/app/notification"
	"github.com/osa030/trackdeck/internal/domain/track"
)

// Command types accepted from controllers.
const (
	CommandPlay      = "play"
	CommandPause     = "pause"
	CommandSeek      = "seek"
	CommandSkip      = "skip"
	CommandClose     = "close"
	CommandSelect    = "select"
	CommandOpenAlbum = "open_album"
	CommandStatus    = "status"
)

// Message types sent to controllers.
const (
	MessageAck    = "ack"
	MessageError  = "error"
	MessageStatus = "status"
)

// Command is a controller request.
type Command struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"` // Echoed in the reply
	AlbumID    int64  `json:"album_id,omitempty"`
	TrackID    int64  `json:"track_id,omitempty"`
	PositionMs int64  `json:"position_ms,omitempty"`
}

// Message is sent to controllers: a command reply or a status update.
type Message struct {
	Type       string     `json:"type"`
	ID         string     `json:"id,omitempty"`
	Error      string     `json:"error,omitempty"`
	Event      string     `json:"event,omitempty"`
	SequenceNo uint64     `json:"sequence_no,omitempty"`
	Status     *StatusDTO `json:"status,omitempty"`
}

// TrackDTO is the wire form of a track.
type TrackDTO struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	DurationMs  int64  `json:"duration_ms"`
	TrackNumber int    `json:"track_number"`
	URL         string `json:"url"`
	AlbumID     int64  `json:"album_id"`
}

// AlbumDTO is the wire form of an album.
type AlbumDTO struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Cover  string `json:"cover"`
	Year   int    `json:"release_year,omitempty"`
}

// StatusDTO is the wire form of the player status.
type StatusDTO struct {
	State      string     `json:"state"`
	Open       bool       `json:"open"`
	Album      *AlbumDTO  `json:"album,omitempty"`
	Tracks     []TrackDTO `json:"tracks"`
	Active     *TrackDTO  `json:"active,omitempty"`
	Track      *TrackDTO  `json:"track,omitempty"`
	PositionMs int64      `json:"position_ms"`
	DurationMs int64      `json:"duration_ms"`
	Playing    bool       `json:"playing"`
	Error      string     `json:"error,omitempty"`
	Generation uint64     `json:"generation"`
}

// Position returns the reported position.
func (s *StatusDTO) Position() time.Duration {
	return time.Duration(s.PositionMs) * time.Millisecond
}

// Duration returns the reported duration.
func (s *StatusDTO) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

func statusMessage(n *notification.Notification) *Message {
	return &Message{
		Type:       MessageStatus,
		Event:      n.Event,
		SequenceNo: n.SequenceNo,
		Status:     toStatusDTO(n.Status),
	}
}

func toStatusDTO(s notification.Status) *StatusDTO {
	dto := &StatusDTO{
		State:      s.State,
		Open:       s.Open,
		Tracks:     make([]TrackDTO, 0, len(s.Tracks)),
		Active:     toTrackDTO(s.Active),
		Track:      toTrackDTO(s.Track),
		PositionMs: s.Position.Milliseconds(),
		DurationMs: s.Duration.Milliseconds(),
		Playing:    s.Playing,
		Generation: s.Generation,
	}
	for i := range s.Tracks {
		dto.Tracks = append(dto.Tracks, *toTrackDTO(&s.Tracks[i]))
	}
	if s.Album != nil {
		dto.Album = &AlbumDTO{
			ID:     s.Album.ID,
			Title:  s.Album.Title,
			Artist: s.Album.ArtistName(),
			Cover:  s.Album.CoverURL(),
			Year:   s.Album.ReleaseYear,
		}
	}
	if s.Err != nil {
		dto.Error = s.Err.Error()
	}
	return dto
}

func toTrackDTO(t *track.Track) *TrackDTO {
	if t == nil {
		return nil
	}
	return &TrackDTO{
		ID:          t.ID,
		Title:       t.Title,
		DurationMs:  t.Duration.Milliseconds(),
		TrackNumber: t.TrackNumber,
		URL:         t.URL,
		AlbumID:     t.AlbumID,
	}
}
