// Package main provides the catalog authentication tool.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/trackdeck/internal/infra/catalog"
	"github.com/osa030/trackdeck/internal/infra/config"
	"github.com/osa030/trackdeck/internal/infra/credential"
	"github.com/osa030/trackdeck/internal/infra/logger"
)

var (
	app        = kingpin.New("trackdeck-auth", "Catalog authentication tool for trackdeck")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	timeout    = app.Flag("timeout", "Request timeout").Default("15s").Duration()

	// login command
	loginCmd      = app.Command("login", "Log in and store the bearer token")
	loginEmail    = loginCmd.Flag("email", "Account email").Envar("TRACKDECK_EMAIL").Required().String()
	loginPassword = loginCmd.Flag("password", "Account password").Envar("TRACKDECK_PASSWORD").Required().String()

	// logout command
	logoutCmd = app.Command("logout", "Forget the stored token")

	// status command
	statusCmd = app.Command("status", "Show the stored credential")
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
	credPath, err := cfg.CredentialPath()
	if err != nil {
		fail("Error: %v", err)
	}
	creds, err := credential.New(credPath)
	if err != nil {
		fail("Failed to load credential: %v", err)
	}

	switch command {
	case loginCmd.FullCommand():
		login(cfg, creds)
	case logoutCmd.FullCommand():
		if err := creds.Clear(); err != nil {
			fail("Error: %v", err)
		}
		fmt.Println("Logged out.")
	case statusCmd.FullCommand():
		if creds.Token() == "" {
			fmt.Println("Not logged in.")
			return
		}
		fmt.Printf("Logged in as %s\n", creds.Email())
		fmt.Printf("Credential file: %s\n", credPath)
		if exp, ok := creds.Expiry(); ok {
			if creds.Expired(time.Now()) {
				fmt.Printf("Token expired at %s, run login again.\n", exp.Local().Format(time.RFC1123))
			} else {
				fmt.Printf("Token expires at %s\n", exp.Local().Format(time.RFC1123))
			}
		}
	}
}

func login(cfg *config.Config, creds *credential.Store) {
	client, err := catalog.New(catalog.Config{BaseURL: cfg.Catalog.BaseURL, Timeout: cfg.CatalogTimeout()}, creds)
	if err != nil {
		fail("Error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	result, err := client.Login(ctx, *loginEmail, *loginPassword)
	if err != nil {
		fail("Login failed: %v", err)
	}

	fmt.Println("")
	fmt.Println("=== Login Successful ===")
	fmt.Println("")
	fmt.Printf("User: %s %s <%s>\n", result.User.FirstName, result.User.LastName, result.User.Email)
	fmt.Printf("Role: %s\n", result.User.Role)
	fmt.Printf("Took: %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("")
	fmt.Println("The token is stored and will be used by trackdeck-server and trackdeck-catalog.")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
