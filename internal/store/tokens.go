// ABOUTME: Invitation and setup token persistence methods for the SQLite store
// ABOUTME: Consumption is a single atomic UPDATE to rule out double-use races

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateInvitation creates a new invitation token.
func (s *SQLiteStore) CreateInvitation(ctx context.Context, inv *InvitationToken) error {
	query := `
		INSERT INTO invitation_tokens (id, created_by, token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	var createdBy sql.NullString
	if inv.CreatedBy != "" {
		createdBy = sql.NullString{String: inv.CreatedBy, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		inv.ID,
		createdBy,
		inv.Token,
		inv.CreatedAt.UTC().Format(time.RFC3339),
		inv.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting invitation token: %w", err)
	}

	s.logger.Info("created invitation token", "id", inv.ID, "expires_at", inv.ExpiresAt)
	return nil
}

// GetInvitationByToken retrieves an invitation by its token value.
func (s *SQLiteStore) GetInvitationByToken(ctx context.Context, token string) (*InvitationToken, error) {
	query := `
		SELECT id, created_by, token, created_at, expires_at, used_at, used_by
		FROM invitation_tokens
		WHERE token = ?
	`

	var inv InvitationToken
	var createdBy, usedBy, usedAtStr sql.NullString
	var createdAtStr, expiresAtStr string

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID,
		&createdBy,
		&inv.Token,
		&createdAtStr,
		&expiresAtStr,
		&usedAtStr,
		&usedBy,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invitation token: %w", err)
	}

	inv.CreatedBy = createdBy.String
	inv.UsedBy = usedBy.String

	if inv.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if inv.ExpiresAt, err = parseTime("expires_at", expiresAtStr); err != nil {
		return nil, err
	}
	if inv.UsedAt, err = parseNullTime("used_at", usedAtStr); err != nil {
		return nil, err
	}

	return &inv, nil
}

// UseInvitation atomically marks an invitation as used by a user.
// Returns ErrTokenUsed if already consumed, ErrTokenExpired if past its
// expiry, or ErrTokenNotFound if the token doesn't exist.
func (s *SQLiteStore) UseInvitation(ctx context.Context, token, usedBy string) error {
	return s.useInvitation(ctx, s.db, token, usedBy)
}

func (s *SQLiteStore) useInvitation(ctx context.Context, e execer, token, usedBy string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	// Atomic update: only succeeds if the token exists, is unused, and unexpired
	query := `
		UPDATE invitation_tokens
		SET used_at = ?, used_by = ?
		WHERE token = ?
		  AND used_at IS NULL
		  AND expires_at > ?
	`

	result, err := e.ExecContext(ctx, query, now, usedBy, token, now)
	if err != nil {
		return fmt.Errorf("marking invitation as used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("invitation token used", "user_id", usedBy)
		return nil
	}

	// rowsAffected == 0: inspect the row to report why
	return s.classifyTokenFailure(ctx, e, "invitation_tokens", token)
}

// CreateSetupToken creates a new setup token for adding a credential
// from another device.
func (s *SQLiteStore) CreateSetupToken(ctx context.Context, st *SetupToken) error {
	query := `
		INSERT INTO setup_tokens (id, user_id, token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		st.ID,
		st.UserID,
		st.Token,
		st.CreatedAt.UTC().Format(time.RFC3339),
		st.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting setup token: %w", err)
	}

	s.logger.Info("created setup token", "id", st.ID, "user_id", st.UserID, "expires_at", st.ExpiresAt)
	return nil
}

// GetSetupTokenByToken retrieves a setup token by its token value.
func (s *SQLiteStore) GetSetupTokenByToken(ctx context.Context, token string) (*SetupToken, error) {
	query := `
		SELECT id, user_id, token, created_at, expires_at, used_at
		FROM setup_tokens
		WHERE token = ?
	`

	var st SetupToken
	var usedAtStr sql.NullString
	var createdAtStr, expiresAtStr string

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&st.ID,
		&st.UserID,
		&st.Token,
		&createdAtStr,
		&expiresAtStr,
		&usedAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying setup token: %w", err)
	}

	if st.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if st.ExpiresAt, err = parseTime("expires_at", expiresAtStr); err != nil {
		return nil, err
	}
	if st.UsedAt, err = parseNullTime("used_at", usedAtStr); err != nil {
		return nil, err
	}

	return &st, nil
}

// UseSetupToken atomically marks a setup token as used.
func (s *SQLiteStore) UseSetupToken(ctx context.Context, token string) error {
	return s.useSetupToken(ctx, s.db, token)
}

func (s *SQLiteStore) useSetupToken(ctx context.Context, e execer, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE setup_tokens
		SET used_at = ?
		WHERE token = ?
		  AND used_at IS NULL
		  AND expires_at > ?
	`

	result, err := e.ExecContext(ctx, query, now, token, now)
	if err != nil {
		return fmt.Errorf("marking setup token as used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("setup token used")
		return nil
	}

	return s.classifyTokenFailure(ctx, e, "setup_tokens", token)
}

// classifyTokenFailure determines why an atomic token consumption matched
// no rows: missing, already used, or expired.
func (s *SQLiteStore) classifyTokenFailure(ctx context.Context, e execer, table, token string) error {
	var usedAt sql.NullString
	var expiresAtStr string

	// table is one of two fixed names, never user input
	err := e.QueryRowContext(ctx,
		"SELECT used_at, expires_at FROM "+table+" WHERE token = ?", token).
		Scan(&usedAt, &expiresAtStr)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("inspecting token: %w", err)
	}

	if usedAt.Valid {
		return ErrTokenUsed
	}

	expiresAt, err := parseTime("expires_at", expiresAtStr)
	if err != nil {
		return err
	}
	if !time.Now().Before(expiresAt) {
		return ErrTokenExpired
	}

	return ErrTokenNotFound
}
