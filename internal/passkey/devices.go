// ABOUTME: Credential management for authenticated users: list, add, remove
// ABOUTME: Add-device ceremonies exclude already-registered authenticators

package passkey

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/tomepile/tomepile/internal/store"
)

// ListCredentials returns the user's passkeys.
func (s *Service) ListCredentials(ctx context.Context, userID string) ([]*store.Credential, error) {
	creds, err := s.store.GetCredentialsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	return creds, nil
}

// BeginAddCredential starts enrollment of an additional passkey for an
// already-authenticated user.
func (s *Service) BeginAddCredential(ctx context.Context, user *store.User) (*protocol.CredentialCreation, string, error) {
	creds, err := s.store.GetCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("loading credentials: %w", err)
	}

	waUser := newWebauthnUser(user, creds)
	options, session, err := s.webAuthn.BeginRegistration(waUser,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
		webauthn.WithExclusions(credentialExclusions(creds)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("beginning registration: %w", err)
	}

	ceremonyID, err := s.newCeremony(ctx, addKeyPrefix, &pendingCeremony{
		Session: *session,
		UserID:  user.ID,
	})
	if err != nil {
		return nil, "", err
	}
	return options, ceremonyID, nil
}

// FinishAddCredential verifies the attestation response and stores the new
// credential. Nothing else changes: no recovery codes, no tokens.
func (s *Service) FinishAddCredential(ctx context.Context, user *store.User, ceremonyID, deviceName string, credentialJSON []byte) (*store.Credential, error) {
	pending, err := s.takeCeremony(ctx, addKeyPrefix, ceremonyID, ErrNoRegistrationInProgress)
	if err != nil {
		return nil, err
	}
	if pending.UserID != user.ID {
		return nil, ErrNoRegistrationInProgress
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(credentialJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	creds, err := s.store.GetCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	waUser := newWebauthnUser(user, creds)
	credential, err := s.webAuthn.CreateCredential(waUser, pending.Session, parsed)
	if err != nil {
		s.logger.Warn("attestation verification failed", "user_id", user.ID, "error", err)
		return nil, ErrVerificationFailed
	}

	credRow, err := newCredentialRow(user.ID, deviceName, credential)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateCredential(ctx, credRow); err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	s.logger.Info("passkey added", "user_id", user.ID, "credential_id", credRow.ID)
	return credRow, nil
}

// RemoveCredential deletes one of the user's passkeys. The store refuses
// to remove the last one.
func (s *Service) RemoveCredential(ctx context.Context, userID, credentialID string) error {
	if err := s.store.DeleteCredential(ctx, userID, credentialID); err != nil {
		return err
	}
	s.logger.Info("passkey removed", "user_id", userID, "credential_id", credentialID)
	return nil
}
