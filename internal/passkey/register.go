// ABOUTME: New-account registration ceremony: invitation gating, options, verify, commit
// ABOUTME: The commit is a single store transaction including recovery code issuance

package passkey

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/tomepile/tomepile/internal/store"
)

// BeginRegistration starts passkey enrollment for a new account. Once any
// account exists an invitation token is mandatory; the first-ever
// registration bootstraps without one. Returns the creation options and
// the ceremony ID the client must echo back at verify time.
func (s *Service) BeginRegistration(ctx context.Context, username, invitationToken string) (*protocol.CredentialCreation, string, error) {
	username = strings.TrimSpace(username)
	if msg := validateUsername(username); msg != "" {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidUsername, msg)
	}

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		if invitationToken == "" {
			return nil, "", ErrInvitationRequired
		}
		if err := s.ValidateInvitation(ctx, invitationToken); err != nil {
			return nil, "", err
		}
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, "", store.ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("checking username: %w", err)
	}

	// The user row does not exist yet; mint its ID now so the credential's
	// user handle survives into the verify step.
	waUser := &webauthnUser{id: []byte(uuid.NewString()), name: username}
	options, session, err := s.webAuthn.BeginRegistration(waUser,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
	)
	if err != nil {
		return nil, "", fmt.Errorf("beginning registration: %w", err)
	}

	ceremonyID, err := s.newCeremony(ctx, regKeyPrefix, &pendingCeremony{
		Session:         *session,
		Username:        username,
		UserID:          string(waUser.id),
		InvitationToken: invitationToken,
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("registration started", "username", username, "bootstrap", count == 0)
	return options, ceremonyID, nil
}

// FinishRegistration verifies the attestation response and commits the new
// account: user row, credential row, ten recovery codes, and invitation
// consumption happen in one transaction. The plaintext recovery codes are
// returned here and never again.
func (s *Service) FinishRegistration(ctx context.Context, username, ceremonyID string, credentialJSON []byte) (*Result, error) {
	username = strings.TrimSpace(username)

	pending, err := s.takeCeremony(ctx, regKeyPrefix, ceremonyID, ErrNoRegistrationInProgress)
	if err != nil {
		return nil, err
	}
	if pending.Username != username {
		return nil, ErrNoRegistrationInProgress
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(credentialJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	waUser := &webauthnUser{id: []byte(pending.UserID), name: username}
	credential, err := s.webAuthn.CreateCredential(waUser, pending.Session, parsed)
	if err != nil {
		s.logger.Warn("attestation verification failed", "username", username, "error", err)
		return nil, ErrVerificationFailed
	}

	// The invitation gate is re-enforced by the transactional consume below;
	// this recheck only decides the bootstrap flag.
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 && pending.InvitationToken == "" {
		return nil, ErrInvitationRequired
	}

	plainCodes, codeHashes, err := generateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generating recovery codes: %w", err)
	}

	user := &store.User{
		ID:            pending.UserID,
		Username:      username,
		IsInitialUser: count == 0,
		CreatedAt:     time.Now().UTC(),
	}
	credRow, err := newCredentialRow(user.ID, "", credential)
	if err != nil {
		return nil, err
	}

	err = s.store.CreateUserRegistration(ctx, user, credRow, codeHashes, pending.InvitationToken)
	switch {
	case errors.Is(err, store.ErrTokenUsed), errors.Is(err, store.ErrTokenExpired), errors.Is(err, store.ErrTokenNotFound):
		return nil, ErrInvitationInvalid
	case err != nil:
		return nil, fmt.Errorf("committing registration: %w", err)
	}

	token, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", username, "initial", user.IsInitialUser)
	return &Result{Token: token, User: user, RecoveryCodes: plainCodes}, nil
}

// CreateInvitation mints a single-use invitation that lets exactly one new
// person register. Only authenticated users reach this.
func (s *Service) CreateInvitation(ctx context.Context, userID string) (*store.InvitationToken, string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generating invitation token: %w", err)
	}

	now := time.Now().UTC()
	inv := &store.InvitationToken{
		ID:        uuid.NewString(),
		CreatedBy: userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(InvitationDuration),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, "", fmt.Errorf("storing invitation: %w", err)
	}

	s.logger.Info("invitation created", "created_by", userID)
	return inv, s.baseURL + "/invite/" + token, nil
}

// ValidateInvitation checks that a token exists, is unused, and is
// unexpired. Used both as the public pre-flight check for the signup UI
// and as the gate at ceremony start.
func (s *Service) ValidateInvitation(ctx context.Context, token string) error {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if errors.Is(err, store.ErrTokenNotFound) {
		return ErrInvitationInvalid
	}
	if err != nil {
		return fmt.Errorf("looking up invitation: %w", err)
	}
	if inv.UsedAt != nil || time.Now().After(inv.ExpiresAt) {
		return ErrInvitationInvalid
	}
	return nil
}
