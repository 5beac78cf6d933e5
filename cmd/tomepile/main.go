// ABOUTME: Entry point for the tomepile authentication server
// ABOUTME: Subcommands: serve, init (write starter config), version

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                            _ _
| |_ ___  _ __ ___   ___ _ __(_) | ___
| __/ _ \| '_ ' _ \ / _ \ '_ \ | |/ _ \
| || (_) | | | | | |  __/ |_) | | |  __/
 \__\___/|_| |_| |_|\___| .__/|_|_|\___|
                        |_|
`

// getConfigPath returns the path to the server config file.
// Priority: TOMEPILE_CONFIG env var > XDG_CONFIG_HOME/tomepile/server.yaml >
// ~/.config/tomepile/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TOMEPILE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tomepile", "server.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tomepile <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the authentication server")
		fmt.Println("  init      Write a starter config file")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

const starterConfig = `# tomepile server configuration
server:
  http_addr: ":8080"
  # External URL used in invitation and setup links
  base_url: "https://books.example.com"
  allowed_origins:
    - "https://books.example.com"

database:
  path: "tomepile.db"

session:
  # Signing secret for session tokens; at least 32 bytes.
  # Generate one with: openssl rand -hex 32
  secret: "${TOMEPILE_SESSION_SECRET}"
  token_lifetime: "720h"

webauthn:
  # Must exactly match the domain the server is reached on
  rp_id: "books.example.com"
  rp_origin: "https://books.example.com"
  rp_display_name: "tomepile"

# Optional: back the challenge cache with Redis for multi-process setups
# redis:
#   addr: "localhost:6379"

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.Green("Wrote starter config to %s", path)
	fmt.Println("Edit it, set TOMEPILE_SESSION_SECRET, then run: tomepile serve")
	return nil
}
