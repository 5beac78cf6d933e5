// ABOUTME: Passkey login and recovery-code login ceremonies
// ABOUTME: All downstream failures collapse into one generic error to resist enumeration

package passkey

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomepile/tomepile/internal/store"
)

// BeginLogin starts a passkey login. Unknown usernames get the same
// response shape with an empty allow-list, so the options call leaks no
// existence signal.
func (s *Service) BeginLogin(ctx context.Context, username string) (*protocol.CredentialAssertion, string, error) {
	username = strings.TrimSpace(username)

	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		userID  string
	)

	user, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		creds, err := s.store.GetCredentialsByUser(ctx, user.ID)
		if err != nil {
			return nil, "", fmt.Errorf("loading credentials: %w", err)
		}
		if len(creds) > 0 {
			waUser := newWebauthnUser(user, creds)
			options, session, err = s.webAuthn.BeginLogin(waUser)
			if err != nil {
				return nil, "", fmt.Errorf("beginning login: %w", err)
			}
			userID = user.ID
			break
		}
		fallthrough
	case errors.Is(err, store.ErrNotFound):
		// Empty allow-list assertion; verify will fail generically.
		options, session, err = s.webAuthn.BeginDiscoverableLogin()
		if err != nil {
			return nil, "", fmt.Errorf("beginning login: %w", err)
		}
	default:
		return nil, "", fmt.Errorf("looking up user: %w", err)
	}

	ceremonyID, err := s.newCeremony(ctx, loginKeyPrefix, &pendingCeremony{
		Session:  *session,
		Username: username,
		UserID:   userID,
	})
	if err != nil {
		return nil, "", err
	}
	return options, ceremonyID, nil
}

// FinishLogin verifies an assertion response, persists the new signature
// counter, and issues a session token. Unknown user, unknown credential,
// and verification mismatch all fail with the same error.
func (s *Service) FinishLogin(ctx context.Context, username, ceremonyID string, credentialJSON []byte) (*Result, error) {
	username = strings.TrimSpace(username)

	pending, err := s.takeCeremony(ctx, loginKeyPrefix, ceremonyID, ErrNoLoginInProgress)
	if err != nil {
		return nil, err
	}
	if pending.Username != username {
		return nil, ErrNoLoginInProgress
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(credentialJSON))
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	if pending.UserID == "" {
		// Options were issued for an unknown username
		s.logger.Info("login failed", "username", username)
		return nil, ErrAuthenticationFailed
	}

	user, err := s.store.GetUser(ctx, pending.UserID)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	creds, err := s.store.GetCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	waUser := newWebauthnUser(user, creds)
	validated, err := s.webAuthn.ValidateLogin(waUser, pending.Session, parsed)
	if err != nil {
		s.logger.Info("login failed", "username", username)
		return nil, ErrAuthenticationFailed
	}
	if validated.Authenticator.CloneWarning {
		s.logger.Warn("possible cloned authenticator", "user_id", user.ID)
		return nil, ErrAuthenticationFailed
	}

	// Persist the counter for the matched credential row
	for _, c := range creds {
		if bytes.Equal(c.CredentialID, validated.ID) {
			if err := s.store.UpdateCredentialSignCount(ctx, c.ID, validated.Authenticator.SignCount); err != nil {
				s.logger.Warn("failed to update sign count", "error", err)
			}
			break
		}
	}

	token, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	s.logger.Info("passkey login successful", "user_id", user.ID)
	return &Result{Token: token, User: user}, nil
}

// dummyCodeHash keeps recovery login timing roughly uniform for unknown
// usernames (bcrypt hash of an unguessable random value).
var dummyCodeHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// LoginWithRecoveryCode authenticates with a single-use recovery code.
// The presented code is normalized before comparison, so dashes, spaces,
// and case do not matter.
func (s *Service) LoginWithRecoveryCode(ctx context.Context, username, code string) (*Result, error) {
	username = strings.TrimSpace(username)
	code = normalizeRecoveryCode(code)

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyCodeHash, []byte(code))
		return nil, ErrAuthenticationFailed
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	codes, err := s.store.GetUnusedRecoveryCodes(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading recovery codes: %w", err)
	}

	for _, rc := range codes {
		if bcrypt.CompareHashAndPassword([]byte(rc.CodeHash), []byte(code)) != nil {
			continue
		}
		if err := s.store.UseRecoveryCode(ctx, rc.ID); err != nil {
			// Lost a race with a concurrent use of the same code
			return nil, ErrAuthenticationFailed
		}

		token, err := s.issuer.Issue(user.ID, user.Username)
		if err != nil {
			return nil, fmt.Errorf("issuing session token: %w", err)
		}
		s.logger.Info("recovery code login successful", "user_id", user.ID)
		return &Result{Token: token, User: user}, nil
	}

	s.logger.Info("recovery code login failed", "username", username)
	return nil, ErrAuthenticationFailed
}
