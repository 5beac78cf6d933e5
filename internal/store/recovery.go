// ABOUTME: Recovery code persistence methods for the SQLite store
// ABOUTME: Only bcrypt hashes are stored; consumption is a one-way flag flip

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetUnusedRecoveryCodes retrieves all unused recovery codes for a user.
func (s *SQLiteStore) GetUnusedRecoveryCodes(ctx context.Context, userID string) ([]*RecoveryCode, error) {
	query := `
		SELECT id, user_id, code_hash, used, used_at, created_at
		FROM recovery_codes
		WHERE user_id = ? AND used = 0
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying recovery codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var codes []*RecoveryCode
	for rows.Next() {
		var code RecoveryCode
		var used int
		var usedAtStr sql.NullString
		var createdAtStr string

		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &used, &usedAtStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning recovery code: %w", err)
		}

		code.Used = used != 0
		if code.UsedAt, err = parseNullTime("used_at", usedAtStr); err != nil {
			return nil, err
		}
		if code.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
			return nil, err
		}
		codes = append(codes, &code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recovery codes: %w", err)
	}
	return codes, nil
}

// UseRecoveryCode atomically marks a recovery code as used.
// A code that is already used never matches again; concurrent attempts
// on the same code see ErrCodeUsed.
func (s *SQLiteStore) UseRecoveryCode(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		`UPDATE recovery_codes SET used = 1, used_at = ? WHERE id = ? AND used = 0`, now, id)
	if err != nil {
		return fmt.Errorf("marking recovery code as used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCodeUsed
	}

	s.logger.Info("recovery code used", "id", id)
	return nil
}

// insertRecoveryCodes inserts a batch of hashed codes using the given
// executor (db or tx).
func insertRecoveryCodes(ctx context.Context, e execer, userID string, codeHashes []string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	for _, hash := range codeHashes {
		_, err := e.ExecContext(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash, used, created_at)
			 VALUES (?, ?, ?, 0, ?)`,
			uuid.NewString(), userID, hash, now)
		if err != nil {
			return fmt.Errorf("inserting recovery code: %w", err)
		}
	}
	return nil
}
