// ABOUTME: Multi-row registration commits for the SQLite store
// ABOUTME: User+credential+recovery-code creation and setup-token enrollment are single transactions

package store

import (
	"context"
	"fmt"
)

// CreateUserRegistration commits a completed registration ceremony in a
// single transaction: the user row, their first credential, the hashed
// recovery codes, and consumption of the invitation token (when one gated
// the registration). Any failure rolls back every write; a user without
// credentials or recovery codes never becomes visible.
func (s *SQLiteStore) CreateUserRegistration(ctx context.Context, user *User, cred *Credential, codeHashes []string, invitationToken string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(tx)

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	if err := insertCredential(ctx, tx, cred); err != nil {
		return err
	}

	if err := insertRecoveryCodes(ctx, tx, user.ID, codeHashes); err != nil {
		return err
	}

	if invitationToken != "" {
		if err := s.useInvitation(ctx, tx, invitationToken, user.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration: %w", err)
	}

	s.logger.Info("registered user", "id", user.ID, "username", user.Username,
		"initial", user.IsInitialUser, "recovery_codes", len(codeHashes))
	return nil
}

// AddCredentialWithSetupToken commits a setup-token enrollment in a single
// transaction: the new credential plus consumption of the setup token.
// No user row and no recovery codes are created on this path.
func (s *SQLiteStore) AddCredentialWithSetupToken(ctx context.Context, cred *Credential, setupToken string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(tx)

	if err := insertCredential(ctx, tx, cred); err != nil {
		return err
	}

	if err := s.useSetupToken(ctx, tx, setupToken); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing setup enrollment: %w", err)
	}

	s.logger.Info("added credential via setup token", "id", cred.ID, "user_id", cred.UserID)
	return nil
}
