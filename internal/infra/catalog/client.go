// Package catalog provides a client for the music catalog REST API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// Errors
var (
	ErrNetwork      = errors.New("catalog: network error")
	ErrValidation   = errors.New("catalog: response validation failed")
	ErrUnauthorized = errors.New("catalog: unauthorized")
)

// APIError is a non-success response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API error %d: %s", e.Status, e.Message)
}

// Credentials stores the bearer token attached to requests.
type Credentials interface {
	Token() string
	Save(token, email string) error
	Clear() error
}

// Config represents catalog client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a catalog API client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials Credentials
	validate    *validator.Validate
}

// New creates a new catalog client. credentials may be nil for anonymous use.
func New(cfg Config, credentials Credentials) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		credentials: credentials,
		validate:    validator.New(),
	}, nil
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	req := loginRequest{Email: email, Password: password}
	if err := c.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, "invalid login request")
	}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/user/login", req, &result); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(result); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "login payload"), ErrValidation)
	}

	if c.credentials != nil {
		if err := c.credentials.Save(result.Token, result.User.Email); err != nil {
			return nil, errors.Wrap(err, "failed to store credential")
		}
	}
	zlog.Info().Msgf("catalog: logged in as %s", result.User.Email)
	return &result, nil
}

// GetHome retrieves the home listings.
func (c *Client) GetHome(ctx context.Context) (*track.Home, error) {
	var payload homePayload
	if err := c.get(ctx, "/merchandise/home", &payload); err != nil {
		return nil, err
	}
	home := payload.toHome()
	return &home, nil
}

// GetArtist retrieves an artist.
func (c *Client) GetArtist(ctx context.Context, id int64) (*track.Artist, error) {
	var payload artistPayload
	if err := c.get(ctx, fmt.Sprintf("/admin/artist/%d", id), &payload); err != nil {
		return nil, err
	}
	artist := payload.toArtist()
	return &artist, nil
}

// GetArtistAlbums retrieves the albums of an artist.
func (c *Client) GetArtistAlbums(ctx context.Context, id int64) ([]track.Album, error) {
	var payload []albumPayload
	if err := c.get(ctx, fmt.Sprintf("/admin/artist/%d/albums", id), &payload); err != nil {
		return nil, err
	}

	albums := make([]track.Album, 0, len(payload))
	for _, p := range payload {
		albums = append(albums, p.toAlbum())
	}
	return albums, nil
}

// GetAlbum retrieves an album.
func (c *Client) GetAlbum(ctx context.Context, id int64) (*track.Album, error) {
	var payload albumPayload
	if err := c.get(ctx, fmt.Sprintf("/admin/album/%d", id), &payload); err != nil {
		return nil, err
	}
	album := payload.toAlbum()
	return &album, nil
}

// GetAlbumTracks retrieves the tracks of an album in play order.
func (c *Client) GetAlbumTracks(ctx context.Context, id int64) ([]track.Track, error) {
	var payload []trackPayload
	if err := c.get(ctx, fmt.Sprintf("/admin/album/%d/tracks", id), &payload); err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(payload))
	for _, p := range payload {
		tracks = append(tracks, p.toTrack())
	}
	return tracks, nil
}

// get performs a GET and validates the payload.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.do(ctx, http.MethodGet, path, nil, out); err != nil {
		return err
	}
	if err := c.validatePayload(out); err != nil {
		return errors.Mark(errors.Wrapf(err, "payload of %s", path), ErrValidation)
	}
	return nil
}

// do sends a request and decodes the envelope payload into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.credentials != nil {
		if token := c.credentials.Token(); token != "" {
			(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
		}
	}

	zlog.Debug().Msgf("catalog: %s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrNetwork)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read response body"), ErrNetwork)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp.StatusCode, data)
	}

	var env envelope[json.RawMessage]
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to parse response"), ErrValidation)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if env.Payload == nil {
		return errors.Mark(errors.Newf("%s %s: missing payload", method, path), ErrValidation)
	}
	if err := json.Unmarshal(*env.Payload, out); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to parse payload"), ErrValidation)
	}
	return nil
}

// statusError builds the error for a non-2xx response. A 401 clears the stored credential.
func (c *Client) statusError(status int, body []byte) error {
	message := http.StatusText(status)
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		message = env.Message
	}

	apiErr := &APIError{Status: status, Message: message}
	if status != http.StatusUnauthorized {
		return apiErr
	}

	if c.credentials != nil {
		if err := c.credentials.Clear(); err != nil {
			zlog.Warn().Msgf("catalog: failed to clear credential: %v", err)
		}
	}
	return errors.Mark(apiErr, ErrUnauthorized)
}

func (c *Client) validatePayload(out any) error {
	switch v := out.(type) {
	case *[]trackPayload:
		for i := range *v {
			if err := c.validate.Struct((*v)[i]); err != nil {
				return errors.Wrapf(err, "track %d", i)
			}
		}
		return nil
	case *[]albumPayload:
		for i := range *v {
			if err := c.validate.Struct((*v)[i]); err != nil {
				return errors.Wrapf(err, "album %d", i)
			}
		}
		return nil
	default:
		return c.validate.Struct(out)
	}
}
