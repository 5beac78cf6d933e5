// ABOUTME: Cross-device setup flow: a short-lived token lets an unauthenticated
// ABOUTME: second device enroll a passkey for an existing account

package passkey

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/tomepile/tomepile/internal/store"
)

// CreateSetupToken mints a 30-minute single-use link that a second,
// unauthenticated device can use to enroll a passkey for the same account.
func (s *Service) CreateSetupToken(ctx context.Context, userID string) (*store.SetupToken, string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generating setup token: %w", err)
	}

	now := time.Now().UTC()
	st := &store.SetupToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(SetupTokenDuration),
	}
	if err := s.store.CreateSetupToken(ctx, st); err != nil {
		return nil, "", fmt.Errorf("storing setup token: %w", err)
	}

	s.logger.Info("setup token created", "user_id", userID)
	return st, s.baseURL + "/setup/" + token, nil
}

// ValidateSetupToken checks a token and returns the account it enrolls
// for, so the setup page can show which account is being linked.
func (s *Service) ValidateSetupToken(ctx context.Context, token string) (*store.User, error) {
	st, err := s.store.GetSetupTokenByToken(ctx, token)
	if errors.Is(err, store.ErrTokenNotFound) {
		return nil, ErrSetupTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("looking up setup token: %w", err)
	}
	if st.UsedAt != nil || time.Now().After(st.ExpiresAt) {
		return nil, ErrSetupTokenInvalid
	}

	user, err := s.store.GetUser(ctx, st.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// BeginSetupRegistration starts the token-gated enrollment ceremony on the
// new device.
func (s *Service) BeginSetupRegistration(ctx context.Context, setupToken string) (*protocol.CredentialCreation, string, error) {
	user, err := s.ValidateSetupToken(ctx, setupToken)
	if err != nil {
		return nil, "", err
	}

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

	ceremonyID, err := s.newCeremony(ctx, setupKeyPrefix, &pendingCeremony{
		Session:    *session,
		UserID:     user.ID,
		SetupToken: setupToken,
	})
	if err != nil {
		return nil, "", err
	}
	return options, ceremonyID, nil
}

// FinishSetupRegistration verifies the attestation response and commits
// the new credential together with the setup token consumption in one
// transaction. No user row or recovery codes are created; the new device
// gets a session token for the existing account.
func (s *Service) FinishSetupRegistration(ctx context.Context, setupToken, ceremonyID, deviceName string, credentialJSON []byte) (*Result, error) {
	pending, err := s.takeCeremony(ctx, setupKeyPrefix, ceremonyID, ErrNoRegistrationInProgress)
	if err != nil {
		return nil, err
	}
	if pending.SetupToken != setupToken {
		return nil, ErrNoRegistrationInProgress
	}

	user, err := s.store.GetUser(ctx, pending.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
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

	err = s.store.AddCredentialWithSetupToken(ctx, credRow, setupToken)
	switch {
	case errors.Is(err, store.ErrTokenUsed), errors.Is(err, store.ErrTokenExpired), errors.Is(err, store.ErrTokenNotFound):
		return nil, ErrSetupTokenInvalid
	case err != nil:
		return nil, fmt.Errorf("committing credential: %w", err)
	}

	token, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	s.logger.Info("passkey enrolled via setup link", "user_id", user.ID, "credential_id", credRow.ID)
	return &Result{Token: token, User: user}, nil
}
