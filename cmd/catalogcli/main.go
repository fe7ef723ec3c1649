// Package main provides the catalog browsing CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/trackdeck/internal/domain/track"
	"github.com/osa030/trackdeck/internal/infra/catalog"
	"github.com/osa030/trackdeck/internal/infra/config"
	"github.com/osa030/trackdeck/internal/infra/credential"
	"github.com/osa030/trackdeck/internal/infra/history"
	"github.com/osa030/trackdeck/internal/infra/logger"
)

var (
	app        = kingpin.New("trackdeck-catalog", "trackdeck catalog browser")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()

	// home command
	homeCmd = app.Command("home", "Show the home listings")

	// artist command
	artistCmd = app.Command("artist", "Show an artist")
	artistID  = artistCmd.Arg("artist-id", "Artist ID").Required().Int64()

	// albums command
	albumsCmd      = app.Command("albums", "List the albums of an artist")
	albumsArtistID = albumsCmd.Arg("artist-id", "Artist ID").Required().Int64()

	// album command
	albumCmd = app.Command("album", "Show an album and its tracks")
	albumID  = albumCmd.Arg("album-id", "Album ID").Required().Int64()

	// most-played command
	mostPlayedCmd   = app.Command("most-played", "List the most played albums from local history")
	mostPlayedLimit = mostPlayedCmd.Flag("limit", "Number of albums").Default("10").Int()

	// recent command
	recentCmd   = app.Command("recent", "List recent plays from local history")
	recentLimit = recentCmd.Flag("limit", "Number of plays").Default("20").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "warn"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CatalogTimeout())
	defer cancel()

	switch command {
	case mostPlayedCmd.FullCommand():
		mostPlayed(ctx, openHistory(cfg), *mostPlayedLimit)
		return
	case recentCmd.FullCommand():
		recent(ctx, openHistory(cfg), *recentLimit)
		return
	}

	client := newClient(cfg)
	switch command {
	case homeCmd.FullCommand():
		home(ctx, client)
	case artistCmd.FullCommand():
		artist(ctx, client, *artistID)
	case albumsCmd.FullCommand():
		albums(ctx, client, *albumsArtistID)
	case albumCmd.FullCommand():
		album(ctx, client, *albumID)
	}
}

func newClient(cfg *config.Config) *catalog.Client {
	credPath, err := cfg.CredentialPath()
	if err != nil {
		fail("Error: %v", err)
	}
	creds, err := credential.New(credPath)
	if err != nil {
		fail("Failed to load credential: %v", err)
	}
	if creds.Token() == "" {
		fmt.Fprintln(os.Stderr, "Warning: not logged in (run trackdeck-auth login)")
	}

	client, err := catalog.New(catalog.Config{BaseURL: cfg.Catalog.BaseURL, Timeout: cfg.CatalogTimeout()}, creds)
	if err != nil {
		fail("Error: %v", err)
	}
	return client
}

func openHistory(cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		fail("Play history is disabled in %s", *configPath)
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		fail("Failed to open play history: %v", err)
	}
	return store
}

func home(ctx context.Context, client *catalog.Client) {
	h, err := client.GetHome(ctx)
	if err != nil {
		fail("Error: %v", err)
	}

	fmt.Println("\n=== FAVORITE ARTISTS ===")
	printArtists(h.FavoriteArtists)
	fmt.Println("\n=== RECENT ALBUMS ===")
	printAlbums(h.RecentAlbums)
	fmt.Println("\n=== RANDOM PICKS ===")
	printAlbums(h.RandomAlbums)
	fmt.Println("\n=== MOST PLAYED ===")
	printAlbums(h.MostPlayedAlbums)
	fmt.Println()
}

func artist(ctx context.Context, client *catalog.Client, id int64) {
	a, err := client.GetArtist(ctx, id)
	if err != nil {
		fail("Error: %v", err)
	}

	fmt.Println("\n=== ARTIST ===")
	fmt.Printf("ID: %d\n", a.ID)
	fmt.Printf("Name: %s\n", a.Name)
	if a.BirthYear > 0 {
		fmt.Printf("Born: %04d-%02d-%02d\n", a.BirthYear, a.BirthMonth, a.BirthDay)
	}
	fmt.Printf("Albums: %d\n", a.AlbumsCount)
	fmt.Printf("Tracks: %d\n", a.TracksCount)
	if a.Avatar != "" {
		fmt.Printf("Avatar: %s\n", a.Avatar)
	}
	fmt.Println()
}

func albums(ctx context.Context, client *catalog.Client, id int64) {
	list, err := client.GetArtistAlbums(ctx, id)
	if err != nil {
		fail("Error: %v", err)
	}

	fmt.Printf("\n=== ALBUMS (artist %d) ===\n", id)
	printAlbums(list)
	fmt.Println()
}

func album(ctx context.Context, client *catalog.Client, id int64) {
	a, err := client.GetAlbum(ctx, id)
	if err != nil {
		fail("Error: %v", err)
	}
	tracks, err := client.GetAlbumTracks(ctx, id)
	if err != nil {
		fail("Error: %v", err)
	}

	fmt.Println("\n=== ALBUM ===")
	fmt.Printf("ID: %d\n", a.ID)
	fmt.Printf("Title: %s\n", a.Title)
	fmt.Printf("Artist: %s\n", a.ArtistName())
	if a.ReleaseYear > 0 {
		fmt.Printf("Released: %d\n", a.ReleaseYear)
	}
	if a.Genre != "" {
		fmt.Printf("Genre: %s\n", a.Genre)
	}
	fmt.Printf("Cover: %s\n", a.CoverURL())

	fmt.Println("\nTracks:")
	tbl := newTable("#", "ID", "TITLE", "TIME")
	var total time.Duration
	for _, t := range tracks {
		tbl.add(t.TrackNumber, t.ID, t.Title, track.FormatClock(t.Duration))
		total += t.Duration
	}
	tbl.render(os.Stdout)
	fmt.Printf("\n%d tracks, %s\n\n", len(tracks), track.FormatClock(total))
}

func mostPlayed(ctx context.Context, store *history.Store, limit int) {
	defer store.Close()

	counts, err := store.MostPlayedAlbums(ctx, limit)
	if err != nil {
		fail("Error: %v", err)
	}

	fmt.Println("\n=== MOST PLAYED ALBUMS ===")
	tbl := newTable("PLAYS", "ID", "ALBUM", "ARTIST")
	for _, c := range counts {
		tbl.add(c.Plays, c.AlbumID, c.AlbumTitle, c.ArtistName)
	}
	tbl.render(os.Stdout)
	fmt.Println()
}

func recent(ctx context.Context, store *history.Store, limit int) {
	defer store.Close()

	plays, err := store.Recent(ctx, limit)
	if err != nil {
		fail("Error: %v", err)
	}

	fmt.Println("\n=== RECENT PLAYS ===")
	tbl := newTable("PLAYED AT", "TRACK", "ALBUM", "ARTIST")
	for _, p := range plays {
		tbl.add(p.PlayedAt.Local().Format("2006-01-02 15:04"), p.TrackTitle, p.AlbumTitle, p.ArtistName)
	}
	tbl.render(os.Stdout)
	fmt.Println()
}

func printArtists(list []track.Artist) {
	tbl := newTable("ID", "NAME", "ALBUMS", "TRACKS")
	for _, a := range list {
		tbl.add(a.ID, a.Name, a.AlbumsCount, a.TracksCount)
	}
	tbl.render(os.Stdout)
}

func printAlbums(list []track.Album) {
	tbl := newTable("ID", "TITLE", "ARTIST", "YEAR")
	for _, a := range list {
		year := ""
		if a.ReleaseYear > 0 {
			year = fmt.Sprint(a.ReleaseYear)
		}
		tbl.add(a.ID, a.Title, a.ArtistName(), year)
	}
	tbl.render(os.Stdout)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
