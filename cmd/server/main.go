// Package main provides the player server entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/trackdeck/internal/api/ws"
	"github.com/osa030/trackdeck/internal/app/filter"
	"github.com/osa030/trackdeck/internal/app/playback"
	"github.com/osa030/trackdeck/internal/app/session"
	"github.com/osa030/trackdeck/internal/infra/audio"
	"github.com/osa030/trackdeck/internal/infra/catalog"
	"github.com/osa030/trackdeck/internal/infra/config"
	"github.com/osa030/trackdeck/internal/infra/credential"
	"github.com/osa030/trackdeck/internal/infra/history"
	"github.com/osa030/trackdeck/internal/infra/logger"
)

var (
	app        = kingpin.New("trackdeck-server", "trackdeck player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: config or stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available queue filters and exit")

	// open command
	openCmd = app.Command("open", "Start the server and open an album right away")
	openID  = openCmd.Arg("album-id", "Album ID").Required().Int64()
	openAt  = openCmd.Flag("track", "Track ID to start at").Int64()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Config first: it carries the log settings.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	var albumID, trackID int64
	if command == openCmd.FullCommand() {
		albumID, trackID = *openID, *openAt
	}

	if err := run(cfg, albumID, trackID); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

func initLogger(cfg *config.Config) (io.Closer, error) {
	loggerConfig := logger.Config{
		Output:     "stdout",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	if cfg.Log.File != "" {
		loggerConfig.Output = "file"
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	return logger.Init(loggerConfig)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config, albumID, trackID int64) error {
	credPath, err := cfg.CredentialPath()
	if err != nil {
		return err
	}
	creds, err := credential.New(credPath)
	if err != nil {
		return errors.Wrap(err, "failed to load credential")
	}
	switch {
	case creds.Token() == "":
		zlog.Warn().Msg("No stored credential, catalog requests are anonymous (run trackdeck-auth login)")
	case creds.Expired(time.Now()):
		zlog.Warn().Msg("Stored credential has expired (run trackdeck-auth login)")
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		if err := creds.Watch(watchCtx); err != nil {
			zlog.Warn().Msgf("Credential file is not watched: %v", err)
		}
	}()

	catalogClient, err := catalog.New(catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: cfg.CatalogTimeout(),
	}, creds)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog client")
	}

	loader, err := audio.NewLoaderFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create audio backend")
	}
	zlog.Info().Msgf("Audio backend: %s", cfg.Audio.Backend)

	var hist session.History
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return errors.Wrap(err, "failed to open play history")
		}
		defer store.Close()
		hist = store
	}

	filters, err := buildFilterChain(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	sessionMgr, err := session.NewManager(session.Config{
		Playback: playback.Config{
			LoadTimeout: cfg.LoadTimeout(),
			EventBuffer: cfg.Playback.EventBuffer,
		},
		Filters: filters,
	}, catalogClient, loader, hist)
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	defer sessionMgr.Close()

	control := ws.NewServer(sessionMgr, ws.Config{Token: cfg.Server.Token})
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("Control token not set, /ws accepts any controller")
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(control.Handler(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running hooks.
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	if albumID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CatalogTimeout())
		err := sessionMgr.OpenAlbum(ctx, albumID, trackID)
		cancel()
		if err != nil {
			zlog.Error().Msgf("Failed to open album %d: %v", albumID, err)
		}
	}

	// Wait for shutdown signal, session end, or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Disconnect controllers first; hijacked connections are not tracked by Shutdown.
	control.Close()
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-24s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// buildFilterChain validates the configured filters and builds the queue admission chain.
func buildFilterChain(cfg *config.Config) (*filter.Chain, error) {
	settings := make(map[string]filter.Settings, len(cfg.Filters))
	for name, f := range cfg.Filters {
		settings[name] = filter.Settings{Enabled: f.Enabled, Settings: f.Settings}
	}
	chain, err := filter.NewChainFromConfig(settings)
	if err != nil {
		return nil, err
	}
	for _, f := range chain.Filters() {
		zlog.Info().Msgf("Queue filter enabled: %s", f.Name())
	}
	return chain, nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
