// Package history records played tracks in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// Play is one recorded playback start.
type Play struct {
	ID         int64
	TrackID    int64
	TrackTitle string
	AlbumID    int64
	AlbumTitle string
	ArtistName string
	PlayedAt   time.Time
}

// AlbumCount is an album with the number of recorded plays.
type AlbumCount struct {
	AlbumID    int64
	AlbumTitle string
	ArtistName string
	Plays      int
}

// Store is a play history backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}

	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to set %q", pragma)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER NOT NULL,
			track_title TEXT NOT NULL,
			album_id INTEGER NOT NULL,
			album_title TEXT NOT NULL DEFAULT '',
			artist_name TEXT NOT NULL DEFAULT '',
			played_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_plays_played_at ON plays(played_at);
		CREATE INDEX IF NOT EXISTS idx_plays_album ON plays(album_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create history schema")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPlay stores a playback start of t. album may be nil.
func (s *Store) RecordPlay(ctx context.Context, t track.Track, album *track.Album, at time.Time) error {
	if t.ID == 0 {
		return errors.New("track id is required")
	}

	albumID := t.AlbumID
	albumTitle := ""
	if album != nil {
		albumID = album.ID
		albumTitle = album.Title
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plays (track_id, track_title, album_id, album_title, artist_name, played_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, albumID, albumTitle, album.ArtistName(), at.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "failed to insert play")
	}
	return nil
}

// Recent returns the latest plays, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Play, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, track_id, track_title, album_id, album_title, artist_name, played_at
		FROM plays
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query plays")
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var p Play
		var playedAt int64
		if err := rows.Scan(&p.ID, &p.TrackID, &p.TrackTitle, &p.AlbumID, &p.AlbumTitle, &p.ArtistName, &playedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan play")
		}
		p.PlayedAt = time.UnixMilli(playedAt)
		plays = append(plays, p)
	}
	return plays, errors.Wrap(rows.Err(), "failed to iterate plays")
}

// MostPlayedAlbums returns albums ordered by play count, most played first.
func (s *Store) MostPlayedAlbums(ctx context.Context, limit int) ([]AlbumCount, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT album_id, MAX(album_title), MAX(artist_name), COUNT(*) AS plays
		FROM plays
		GROUP BY album_id
		ORDER BY plays DESC, MAX(played_at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query album counts")
	}
	defer rows.Close()

	var albums []AlbumCount
	for rows.Next() {
		var a AlbumCount
		if err := rows.Scan(&a.AlbumID, &a.AlbumTitle, &a.ArtistName, &a.Plays); err != nil {
			return nil, errors.Wrap(err, "failed to scan album count")
		}
		albums = append(albums, a)
	}
	return albums, errors.Wrap(rows.Err(), "failed to iterate album counts")
}
