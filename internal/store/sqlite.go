// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/credential/token persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			username        TEXT UNIQUE NOT NULL,
			is_initial_user INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

		CREATE TABLE IF NOT EXISTS passkey_credentials (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			credential_id    BLOB UNIQUE NOT NULL,
			public_key       BLOB NOT NULL,
			attestation_type TEXT,
			transports       TEXT,
			sign_count       INTEGER NOT NULL DEFAULT 0,
			device_name      TEXT,
			created_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_passkey_credentials_user ON passkey_credentials(user_id);

		CREATE TABLE IF NOT EXISTS recovery_codes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			code_hash  TEXT NOT NULL,
			used       INTEGER NOT NULL DEFAULT 0,
			used_at    TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recovery_codes_user ON recovery_codes(user_id, used);

		CREATE TABLE IF NOT EXISTS invitation_tokens (
			id         TEXT PRIMARY KEY,
			created_by TEXT REFERENCES users(id),
			token      TEXT UNIQUE NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			used_at    TEXT,
			used_by    TEXT REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_invitation_tokens_expires ON invitation_tokens(expires_at);

		CREATE TABLE IF NOT EXISTS setup_tokens (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token      TEXT UNIQUE NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			used_at    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_setup_tokens_expires ON setup_tokens(expires_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DeleteExpiredTokens removes expired, never-used invitation and setup tokens.
// Consumed tokens are retained for audit.
func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM invitation_tokens WHERE expires_at <= ? AND used_at IS NULL", now)
	if err != nil {
		return fmt.Errorf("deleting expired invitation tokens: %w", err)
	}
	invites, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		"DELETE FROM setup_tokens WHERE expires_at <= ? AND used_at IS NULL", now)
	if err != nil {
		return fmt.Errorf("deleting expired setup tokens: %w", err)
	}
	setups, _ := res.RowsAffected()

	if invites > 0 || setups > 0 {
		s.logger.Debug("deleted expired tokens", "invitations", invites, "setup_tokens", setups)
	}
	return nil
}

// execer abstracts *sql.DB and *sql.Tx so row helpers work inside and
// outside transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// parseTime parses an RFC3339 timestamp column.
func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// parseNullTime parses an optional RFC3339 timestamp column.
func parseNullTime(field string, value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTime(field, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// rollback discards a transaction, ignoring the already-committed case.
func (s *SQLiteStore) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Error("transaction rollback failed", "error", err)
	}
}
