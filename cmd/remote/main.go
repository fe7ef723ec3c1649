// Package main provides the remote control CLI for a running trackdeck server.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/osa030/trackdeck/internal/api/ws"
	"github.com/osa030/trackdeck/internal/domain/track"
)

var (
	app     = kingpin.New("trackdeck-remote", "trackdeck remote control")
	server  = app.Flag("server", "Server address").Default("ws://localhost:8080").String()
	token   = app.Flag("token", "Control token (or set TRACKDECK_CONTROL_TOKEN env)").Envar("TRACKDECK_CONTROL_TOKEN").String()
	timeout = app.Flag("timeout", "Reply timeout").Default("35s").Duration()

	// status command
	statusCmd = app.Command("status", "Show the player status")

	// transport commands
	playCmd  = app.Command("play", "Resume playback")
	pauseCmd = app.Command("pause", "Pause playback")
	skipCmd  = app.Command("skip", "Skip to the next track")
	closeCmd = app.Command("close", "Close the player")

	// seek command
	seekCmd = app.Command("seek", "Seek within the current track")
	seekPos = seekCmd.Arg("position", "Target position (seconds or m:ss)").Required().String()

	// select command
	selectCmd   = app.Command("select", "Play a queued track")
	selectTrack = selectCmd.Arg("track-id", "Track ID").Required().Int64()

	// open command
	openCmd   = app.Command("open", "Open an album")
	openAlbum = openCmd.Arg("album-id", "Album ID").Required().Int64()
	openTrack = openCmd.Flag("track", "Track ID to start at").Int64()

	// watch command
	watchCmd = app.Command("watch", "Follow playback with a transport bar")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	conn, err := connect()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// The server sends the current status on connect.
	initial, err := read(conn)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case statusCmd.FullCommand():
		printStatus(initial.Status)
	case playCmd.FullCommand():
		send(conn, ws.Command{Type: ws.CommandPlay})
	case pauseCmd.FullCommand():
		send(conn, ws.Command{Type: ws.CommandPause})
	case skipCmd.FullCommand():
		send(conn, ws.Command{Type: ws.CommandSkip})
	case closeCmd.FullCommand():
		send(conn, ws.Command{Type: ws.CommandClose})
	case seekCmd.FullCommand():
		pos, err := parsePosition(*seekPos)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		send(conn, ws.Command{Type: ws.CommandSeek, PositionMs: pos.Milliseconds()})
	case selectCmd.FullCommand():
		send(conn, ws.Command{Type: ws.CommandSelect, TrackID: *selectTrack})
	case openCmd.FullCommand():
		send(conn, ws.Command{Type: ws.CommandOpenAlbum, AlbumID: *openAlbum, TrackID: *openTrack})
	case watchCmd.FullCommand():
		watch(conn, initial)
	}
}

func connect() (*websocket.Conn, error) {
	u, err := url.Parse(*server)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	header := http.Header{}
	if *token != "" {
		header.Set(ws.TokenHeader, *token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("unauthorized (use --token or TRACKDECK_CONTROL_TOKEN env)")
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	return conn, nil
}

func read(conn *websocket.Conn) (*ws.Message, error) {
	conn.SetReadDeadline(time.Now().Add(*timeout))
	var msg ws.Message
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// send issues cmd and waits for its reply, skipping status pushes.
func send(conn *websocket.Conn, cmd ws.Command) {
	cmd.ID = uuid.New().String()
	if err := conn.WriteJSON(cmd); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for {
		msg, err := read(conn)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if msg.ID != cmd.ID {
			continue
		}
		if msg.Type == ws.MessageError {
			fmt.Printf("Rejected: %s\n", msg.Error)
			os.Exit(1)
		}
		fmt.Printf("OK: %s\n", cmd.Type)
		return
	}
}

// parsePosition accepts "90", "90.5" or "1:30".
func parsePosition(s string) (time.Duration, error) {
	var mins, secs float64
	if n, err := fmt.Sscanf(s, "%f:%f", &mins, &secs); err == nil && n == 2 {
		return time.Duration((mins*60 + secs) * float64(time.Second)), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func formatState(s *ws.StatusDTO) string {
	switch s.State {
	case "idle":
		return "⏹  Idle"
	case "loading":
		return "⏳ Loading"
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "error":
		return "⚠️  Error"
	default:
		return "❓ Unknown"
	}
}

func printStatus(s *ws.StatusDTO) {
	if s == nil {
		fmt.Println("No status")
		return
	}

	fmt.Println("\n=== PLAYER STATUS ===")
	fmt.Printf("State: %s\n", formatState(s))
	fmt.Printf("Panel Open: %v\n", s.Open)
	if s.Error != "" {
		fmt.Printf("Error: %s\n", s.Error)
	}

	if s.Album != nil {
		fmt.Println("\nAlbum:")
		fmt.Printf("  Title: %s\n", s.Album.Title)
		fmt.Printf("  Artist: %s\n", s.Album.Artist)
		fmt.Printf("  Cover: %s\n", s.Album.Cover)
	}

	if s.Track != nil {
		fmt.Println("\nTrack:")
		fmt.Printf("  ID: %d\n", s.Track.ID)
		fmt.Printf("  Title: %s\n", s.Track.Title)
		fmt.Printf("  Position: %s / %s\n", track.FormatClock(s.Position()), track.FormatClock(s.Duration()))
	}

	if len(s.Tracks) > 0 {
		fmt.Println("\nQueue:")
		for _, t := range s.Tracks {
			marker := "  "
			if s.Active != nil && s.Active.ID == t.ID {
				marker = "> "
			}
			d := time.Duration(t.DurationMs) * time.Millisecond
			fmt.Printf("  %s%2d. %s (%s) [id %d]\n", marker, t.TrackNumber, t.Title, track.FormatClock(d), t.ID)
		}
	}
	fmt.Println()
}

// watch renders a transport bar until interrupted or disconnected.
func watch(conn *websocket.Conn, initial *ws.Message) {
	fmt.Println("Watching playback. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		conn.Close()
		os.Exit(0)
	}()

	bar := newBar()
	var trackID int64
	render := func(s *ws.StatusDTO) {
		if s == nil {
			return
		}
		if s.Track == nil {
			bar.Describe(formatState(s))
			bar.Set(0)
			trackID = 0
			return
		}
		if s.Track.ID != trackID {
			trackID = s.Track.ID
			bar.Reset()
		}
		total := int(s.DurationMs / 1000)
		if total <= 0 {
			total = 1
		}
		bar.ChangeMax(total)
		bar.Describe(fmt.Sprintf("%s %s %s/%s", formatState(s), s.Track.Title,
			track.FormatClock(s.Position()), track.FormatClock(s.Duration())))
		bar.Set(int(s.PositionMs / 1000))
	}

	render(initial.Status)
	for {
		// Status pushes arrive at least every progress interval while playing.
		conn.SetReadDeadline(time.Time{})
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			fmt.Printf("\nStream error: %v\n", err)
			return
		}
		if msg.Type == ws.MessageStatus {
			render(msg.Status)
		}
	}
}

func newBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(1,
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
