// Package track provides the catalog domain entities.
package track

import (
	"fmt"
	"time"
)

// PlaceholderCover is shown when an album has no cover image.
const PlaceholderCover = "https://via.placeholder.com/56x56?text=Music"

// Track represents a single playable audio item.
// Values are immutable once fetched from the catalog.
type Track struct {
	ID          int64         // Catalog track ID (unique within a queue)
	Title       string        // Track title
	Duration    time.Duration // Metadata duration (placeholder until the audio reports its own)
	TrackNumber int           // Position on the album
	URL         string        // Source locator of the audio asset
	AlbumID     int64         // Owning album
	CreatedAt   string
	UpdatedAt   string
}

// ArtistSummary is the denormalized artist reference carried by an album.
type ArtistSummary struct {
	ID   int64
	Name string
}

// Album represents an album entity.
type Album struct {
	ID          int64
	Title       string
	ArtistID    int64
	Artist      *ArtistSummary // nil when the payload omits it
	ReleaseYear int
	Genre       string
	Cover       string // Cover image URL
	Duration    time.Duration
	TracksCount int
}

// Artist represents an artist entity.
type Artist struct {
	ID          int64
	Name        string
	Avatar      string
	BirthDay    int
	BirthMonth  int
	BirthYear   int
	AlbumsCount int
	TracksCount int
}

// Home holds the listings shown on the home screen.
type Home struct {
	FavoriteArtists  []Artist
	RecentAlbums     []Album
	RandomAlbums     []Album
	MostPlayedAlbums []Album
}

// ArtistName returns the display name of the album artist, or "" if unknown.
func (a *Album) ArtistName() string {
	if a == nil || a.Artist == nil {
		return ""
	}
	return a.Artist.Name
}

// CoverURL returns the cover URL, falling back to a placeholder image.
func (a *Album) CoverURL() string {
	if a == nil || a.Cover == "" {
		return PlaceholderCover
	}
	return a.Cover
}

// SameAs reports whether two tracks share an identity.
func (t *Track) SameAs(other *Track) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ID == other.ID
}

// FormatClock formats a duration as m:ss, as shown on the transport bar.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
