// ABOUTME: User persistence methods for the SQLite store
// ABOUTME: Enforces username uniqueness at the storage boundary

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if err := insertUser(ctx, s.db, user); err != nil {
		return err
	}
	s.logger.Info("created user", "id", user.ID, "username", user.Username, "initial", user.IsInitialUser)
	return nil
}

// insertUser inserts a user row using the given executor (db or tx).
func insertUser(ctx context.Context, e execer, user *User) error {
	query := `
		INSERT INTO users (id, username, is_initial_user, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := e.ExecContext(ctx, query,
		user.ID,
		user.Username,
		boolToInt(user.IsInitialUser),
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, is_initial_user, created_at FROM users WHERE id = ?`, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, is_initial_user, created_at FROM users WHERE username = ?`, username))
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var isInitial int
	var createdAtStr string

	err := row.Scan(&user.ID, &user.Username, &isInitial, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.IsInitialUser = isInitial != 0
	user.CreatedAt, err = parseTime("created_at", createdAtStr)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CountUsers returns the number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// ListUsers returns all users ordered by creation time.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, is_initial_user, created_at FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		var user User
		var isInitial int
		var createdAtStr string

		if err := rows.Scan(&user.ID, &user.Username, &isInitial, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}

		user.IsInitialUser = isInitial != 0
		user.CreatedAt, err = parseTime("created_at", createdAtStr)
		if err != nil {
			return nil, err
		}
		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
