// Package credential persists the catalog bearer token between runs.
package credential

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// file is the on-disk layout.
type file struct {
	Token   string    `yaml:"token"`
	Email   string    `yaml:"email,omitempty"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Store is a YAML file holding one bearer token.
type Store struct {
	mu    sync.RWMutex
	path  string
	cache *file
}

// New creates a store at path and loads any existing credential.
// A missing file is not an error.
func New(path string) (*Store, error) {
	s := &Store{path: path}
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	s.cache = f
	return s, nil
}

// readFile returns nil for a missing file.
func readFile(path string) (*file, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read credential file")
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse credential file")
	}
	return &f, nil
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// Token returns the stored token, or "" if none.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return ""
	}
	return s.cache.Token
}

// Email returns the account the token belongs to.
func (s *Store) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return ""
	}
	return s.cache.Email
}

// Save writes the token to disk with owner-only permissions.
func (s *Store) Save(token, email string) error {
	if token == "" {
		return errors.New("token is required")
	}

	f := &file{Token: token, Email: email, SavedAt: time.Now().UTC()}
	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode credential")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create credential dir")
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write credential file")
	}
	s.cache = f
	return nil
}

// Clear forgets the token and removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to remove credential file")
	}
	return nil
}

// Expiry returns the expiry of the stored token when it is a JWT carrying an
// exp claim. The signature is not verified; the API does that.
func (s *Store) Expiry() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the stored token is known to have expired at now.
func (s *Store) Expired(now time.Time) bool {
	exp, ok := s.Expiry()
	return ok && !now.Before(exp)
}

// Watch reloads the credential whenever the file changes on disk, so a login
// from another process takes effect without a restart. Blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	// Watch the directory: the file may not exist yet and editors replace it.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create credential dir")
	}
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Msgf("credential: watcher error: %v", err)
		}
	}
}

func (s *Store) reload() {
	f, err := readFile(s.path)
	if err != nil {
		// Partially written file; the next event retries.
		zlog.Debug().Msgf("credential: reload skipped: %v", err)
		return
	}

	s.mu.Lock()
	changed := (s.cache == nil) != (f == nil) || (f != nil && s.cache.Token != f.Token)
	s.cache = f
	s.mu.Unlock()

	if changed {
		zlog.Info().Msgf("credential: reloaded from %s (logged in: %v)", s.path, f != nil && f.Token != "")
	}
}
