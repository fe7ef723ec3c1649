package catalog

import (
	"time"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// envelope is the response wrapper of every endpoint.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload *T     `json:"payload"`
}

// User is the authenticated account.
type User struct {
	ID        int64  `json:"id" validate:"gt=0"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// LoginResult is the payload of a successful login.
type LoginResult struct {
	Token string `json:"token" validate:"required"`
	User  User   `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type trackPayload struct {
	ID          int64   `json:"id" validate:"gt=0"`
	Title       string  `json:"title" validate:"required"`
	Duration    float64 `json:"duration" validate:"gte=0"` // Seconds
	TrackNumber int     `json:"track_number" validate:"gte=0"`
	URL         string  `json:"url" validate:"required"`
	AlbumID     int64   `json:"album_id" validate:"gt=0"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type artistPayload struct {
	ID          int64  `json:"id" validate:"gt=0"`
	Name        string `json:"name" validate:"required"`
	Avatar      string `json:"avatar"`
	BirthDay    int    `json:"birth_day" validate:"gte=0,lte=31"`
	BirthMonth  int    `json:"birth_month" validate:"gte=0,lte=12"`
	BirthYear   int    `json:"birth_year" validate:"gte=0"`
	AlbumsCount int    `json:"albums_count" validate:"gte=0"`
	TracksCount int    `json:"tracks_count" validate:"gte=0"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type albumPayload struct {
	ID          int64          `json:"id" validate:"gt=0"`
	Title       string         `json:"title" validate:"required"`
	ArtistID    int64          `json:"artist_id" validate:"gte=0"`
	Artist      *artistPayload `json:"artist,omitempty"`
	ReleaseYear int            `json:"release_year" validate:"gte=0"`
	Genre       string         `json:"genre"`
	Cover       string         `json:"cover"`
	Duration    float64        `json:"duration" validate:"gte=0"` // Seconds
	TracksCount int            `json:"tracks_count" validate:"gte=0"`
}

type homeArtistPayload struct {
	ID     int64  `json:"id" validate:"gt=0"`
	Name   string `json:"name" validate:"required"`
	Avatar string `json:"avatar" validate:"omitempty,url"`
}

type homeAlbumPayload struct {
	ID     int64 `json:"id" validate:"gt=0"`
	Title  string `json:"title" validate:"required"`
	Artist struct {
		ID   int64  `json:"id" validate:"gt=0"`
		Name string `json:"name" validate:"required"`
	} `json:"artist"`
	Cover string `json:"cover" validate:"omitempty,url"`
}

type homePayload struct {
	FavoriteArtists  []homeArtistPayload `json:"favoriteArtists" validate:"dive"`
	RecentAlbums     []homeAlbumPayload  `json:"recentAlbums" validate:"dive"`
	RandomAlbums     []homeAlbumPayload  `json:"randomAlbums" validate:"dive"`
	MostPlayedAlbums []homeAlbumPayload  `json:"mostPlayedAlbums" validate:"dive"`
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (p trackPayload) toTrack() track.Track {
	return track.Track{
		ID:          p.ID,
		Title:       p.Title,
		Duration:    seconds(p.Duration),
		TrackNumber: p.TrackNumber,
		URL:         p.URL,
		AlbumID:     p.AlbumID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (p artistPayload) toArtist() track.Artist {
	return track.Artist{
		ID:          p.ID,
		Name:        p.Name,
		Avatar:      p.Avatar,
		BirthDay:    p.BirthDay,
		BirthMonth:  p.BirthMonth,
		BirthYear:   p.BirthYear,
		AlbumsCount: p.AlbumsCount,
		TracksCount: p.TracksCount,
	}
}

func (p albumPayload) toAlbum() track.Album {
	a := track.Album{
		ID:          p.ID,
		Title:       p.Title,
		ArtistID:    p.ArtistID,
		ReleaseYear: p.ReleaseYear,
		Genre:       p.Genre,
		Cover:       p.Cover,
		Duration:    seconds(p.Duration),
		TracksCount: p.TracksCount,
	}
	if p.Artist != nil {
		a.Artist = &track.ArtistSummary{ID: p.Artist.ID, Name: p.Artist.Name}
	}
	return a
}

func (p homeAlbumPayload) toAlbum() track.Album {
	return track.Album{
		ID:       p.ID,
		Title:    p.Title,
		ArtistID: p.Artist.ID,
		Artist:   &track.ArtistSummary{ID: p.Artist.ID, Name: p.Artist.Name},
		Cover:    p.Cover,
	}
}

func (p homePayload) toHome() track.Home {
	h := track.Home{}
	for _, a := range p.FavoriteArtists {
		h.FavoriteArtists = append(h.FavoriteArtists, track.Artist{ID: a.ID, Name: a.Name, Avatar: a.Avatar})
	}
	for _, a := range p.RecentAlbums {
		h.RecentAlbums = append(h.RecentAlbums, a.toAlbum())
	}
	for _, a := range p.RandomAlbums {
		h.RandomAlbums = append(h.RandomAlbums, a.toAlbum())
	}
	for _, a := range p.MostPlayedAlbums {
		h.MostPlayedAlbums = append(h.MostPlayedAlbums, a.toAlbum())
	}
	return h
}
