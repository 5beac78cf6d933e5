// ABOUTME: Operator CLI for tomepile: instance status, user listing, and
// ABOUTME: recovery invitations minted directly against the store

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/tomepile/tomepile/internal/config"
	"github.com/tomepile/tomepile/internal/passkey"
	"github.com/tomepile/tomepile/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus()
	case "users":
		err = cmdUsers()
	case "bootstrap-invite":
		err = cmdBootstrapInvite()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: tomepile-admin <command>")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status             Query a running server's registration status")
	fmt.Println("  users              List accounts (reads the database directly)")
	fmt.Println("  bootstrap-invite   Mint an invitation directly in the database")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TOMEPILE_URL       Server base URL for status (default http://localhost:8080)")
	fmt.Println("  TOMEPILE_CONFIG    Config file for database access")
}

func serverURL() string {
	if u := os.Getenv("TOMEPILE_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// openStore loads the config and opens the SQLite store it points at.
func openStore() (*store.SQLiteStore, error) {
	configPath := os.Getenv("TOMEPILE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TOMEPILE_CONFIG must point at the server config")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return store.NewSQLiteStore(cfg.Database.Path)
}

func cmdStatus() error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL() + "/status")
	if err != nil {
		return fmt.Errorf("querying server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var status struct {
		HasUser            bool `json:"hasUser"`
		RequiresInvitation bool `json:"requiresInvitation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Server: ")
	fmt.Println(serverURL())

	if status.HasUser {
		fmt.Println("Accounts exist; new registrations require an invitation")
	} else {
		color.Yellow("No accounts yet; the first registration bootstraps the instance")
	}
	return nil
}

func cmdUsers() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	users, err := st.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		color.Yellow("No users registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tID\tCREATED\tPASSKEYS\tINITIAL")
	for _, u := range users {
		count, err := st.CountCredentials(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("counting credentials: %w", err)
		}
		initial := ""
		if u.IsInitialUser {
			initial = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			u.Username, u.ID, u.CreatedAt.Format("2006-01-02"), count, initial)
	}
	return w.Flush()
}

// cmdBootstrapInvite writes an invitation straight into the store. Meant
// for recovery scenarios where no account can log in to mint one.
func cmdBootstrapInvite() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	token := hex.EncodeToString(raw)
	now := time.Now().UTC()
	inv := &store.InvitationToken{
		ID:        uuid.NewString(),
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(passkey.InvitationDuration),
	}
	if err := st.CreateInvitation(context.Background(), inv); err != nil {
		return fmt.Errorf("creating invitation: %w", err)
	}

	color.Green("Invitation created (valid until %s)", inv.ExpiresAt.Format(time.RFC3339))
	fmt.Println(token)
	return nil
}
