// Package ws provides the websocket control endpoint: it pushes player status to
// connected controllers and accepts transport commands from them.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/app/notification"
)

const (
	// TokenHeader is the header name for the control token.
	TokenHeader = "X-Control-Token"
	// TokenQuery is the query parameter accepted when headers cannot be set.
	TokenQuery = "token"

	defaultCommandTimeout = 30 * time.Second
)

var errUnknownCommand = errors.New("unknown command")

// Session is the player the server controls.
type Session interface {
	OpenAlbum(ctx context.Context, albumID, trackID int64) error
	Select(trackID int64) error
	ClosePanel()
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, target time.Duration) error
	Skip(ctx context.Context) error
	GetStatus() notification.Status
	GetNotificationManager() *notification.Manager
}

// Config holds server configuration.
type Config struct {
	Token          string        // Empty disables authentication
	CommandTimeout time.Duration // Bound for a single command
}

// Server serves the control endpoint.
type Server struct {
	session  Session
	config   Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewServer creates a new control server.
func NewServer(session Session, config Config) *Server {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = defaultCommandTimeout
	}
	return &Server{
		session: session,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Controllers are native apps and CLIs, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler serving /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ClientCount returns the number of connected controllers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every controller and rejects new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	token := r.Header.Get(TokenHeader)
	if token == "" {
		token = r.URL.Query().Get(TokenQuery)
	}
	return token == s.config.Token
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("ws: upgrade failed: %v", err)
		return
	}

	c := newClient(s, conn)
	s.register(c)

	// Current status first, then every broadcast.
	if err := c.enqueue(&Message{Type: MessageStatus, Event: "snapshot", Status: toStatusDTO(s.session.GetStatus())}); err != nil {
		zlog.Warn().Msgf("ws: failed to send initial status: %v", err)
	}

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"state":   s.session.GetStatus().State,
	})
}

func (s *Server) register(c *client) {
	c.id = s.session.GetNotificationManager().Subscribe(c)

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	zlog.Info().Msgf("ws: controller connected: id=%s remote=%s", c.id, c.conn.RemoteAddr())
}

func (s *Server) unregister(c *client) {
	s.session.GetNotificationManager().Unsubscribe(c.id)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	c.close()
	zlog.Info().Msgf("ws: controller disconnected: id=%s", c.id)
}

// handleCommand runs cmd against the session and builds the reply.
func (s *Server) handleCommand(cmd *Command) *Message {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.CommandTimeout)
	defer cancel()

	zlog.Debug().Msgf("ws: command %s id=%s", cmd.Type, cmd.ID)

	var err error
	switch cmd.Type {
	case CommandPlay:
		err = s.session.Play(ctx)
	case CommandPause:
		err = s.session.Pause(ctx)
	case CommandSeek:
		err = s.session.Seek(ctx, time.Duration(cmd.PositionMs)*time.Millisecond)
	case CommandSkip:
		err = s.session.Skip(ctx)
	case CommandClose:
		s.session.ClosePanel()
	case CommandSelect:
		err = s.session.Select(cmd.TrackID)
	case CommandOpenAlbum:
		err = s.session.OpenAlbum(ctx, cmd.AlbumID, cmd.TrackID)
	case CommandStatus:
		return &Message{Type: MessageStatus, ID: cmd.ID, Status: toStatusDTO(s.session.GetStatus())}
	default:
		err = errors.Wrapf(errUnknownCommand, "%q", cmd.Type)
	}

	if err != nil {
		zlog.Debug().Msgf("ws: command %s failed: %v", cmd.Type, err)
		return &Message{Type: MessageError, ID: cmd.ID, Error: err.Error()}
	}
	return &Message{Type: MessageAck, ID: cmd.ID}
}
