// ABOUTME: Passkey credential persistence methods for the SQLite store
// ABOUTME: Enforces the at-least-one-credential invariant on deletion

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const credentialColumns = `id, user_id, credential_id, public_key, attestation_type, transports, sign_count, device_name, created_at`

// CreateCredential stores a new passkey credential.
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *Credential) error {
	if err := insertCredential(ctx, s.db, cred); err != nil {
		return err
	}
	s.logger.Info("created passkey credential", "id", cred.ID, "user_id", cred.UserID)
	return nil
}

// insertCredential inserts a credential row using the given executor (db or tx).
func insertCredential(ctx context.Context, e execer, cred *Credential) error {
	query := `
		INSERT INTO passkey_credentials (` + credentialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := e.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.DeviceName,
		cred.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCredentialExists
		}
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

// GetCredentialsByUser retrieves all credentials for a user.
func (s *SQLiteStore) GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM passkey_credentials
		WHERE user_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*Credential
	for rows.Next() {
		cred, err := scanCredentialRow(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return creds, nil
}

// GetCredentialByCredentialID retrieves a credential by its opaque
// authenticator-assigned identifier.
func (s *SQLiteStore) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM passkey_credentials
		WHERE credential_id = ?
	`

	row := s.db.QueryRowContext(ctx, query, credentialID)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredentialRow(rs rowScanner) (*Credential, error) {
	var cred Credential
	var attestation, transports, deviceName sql.NullString
	var createdAtStr string

	if err := rs.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.CredentialID,
		&cred.PublicKey,
		&attestation,
		&transports,
		&cred.SignCount,
		&deviceName,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	cred.AttestationType = attestation.String
	cred.Transports = transports.String
	cred.DeviceName = deviceName.String

	var err error
	cred.CreatedAt, err = parseTime("created_at", createdAtStr)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func scanCredential(row *sql.Row) (*Credential, error) {
	cred, err := scanCredentialRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning credential: %w", err)
	}
	return cred, nil
}

// UpdateCredentialSignCount updates the signature counter after a
// successful login. The counter is the anti-clone defense; the ceremony
// verifier rejects counters that fail to increase.
func (s *SQLiteStore) UpdateCredentialSignCount(ctx context.Context, id string, signCount uint32) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE passkey_credentials SET sign_count = ? WHERE id = ?`, signCount, id)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCredential deletes a credential owned by the given user.
// Returns ErrLastCredential if it is the user's only credential; the
// count check and the delete run in one transaction so two concurrent
// deletes cannot both succeed.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, userID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(tx)

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM passkey_credentials WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return fmt.Errorf("counting credentials: %w", err)
	}
	if count <= 1 {
		return ErrLastCredential
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM passkey_credentials WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("deleted passkey credential", "id", id, "user_id", userID)
	return nil
}

// CountCredentials returns the number of credentials owned by a user.
func (s *SQLiteStore) CountCredentials(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM passkey_credentials WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return count, nil
}
