// ABOUTME: Ceremony orchestration service for passkey registration and login
// ABOUTME: Ties the WebAuthn verifier to the credential store, challenge cache, and token issuer

package passkey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/tomepile/tomepile/internal/auth"
	"github.com/tomepile/tomepile/internal/challenge"
	"github.com/tomepile/tomepile/internal/store"
)

const (
	// InvitationDuration is how long invitation links are valid
	InvitationDuration = 7 * 24 * time.Hour
	// SetupTokenDuration is how long cross-device setup links are valid
	SetupTokenDuration = 30 * time.Minute

	recoveryCodeCount = 10
)

// Service errors
var (
	ErrInvitationRequired       = errors.New("invitation required")
	ErrInvitationInvalid        = errors.New("invitation invalid, used, or expired")
	ErrSetupTokenInvalid        = errors.New("setup link invalid, used, or expired")
	ErrInvalidUsername          = errors.New("invalid username")
	ErrNoRegistrationInProgress = errors.New("no registration in progress")
	ErrNoLoginInProgress        = errors.New("no login in progress")
	ErrVerificationFailed       = errors.New("verification failed")
	ErrAuthenticationFailed     = errors.New("authentication failed")
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Options configures the service.
type Options struct {
	RPID          string
	RPOrigin      string
	RPDisplayName string
	// BaseURL is the external URL for generating invitation and setup links
	BaseURL string
}

// Service orchestrates WebAuthn ceremonies. Each ceremony start mints a
// random ceremony ID that the client echoes back at verify time, so
// concurrent attempts for the same account never share a challenge.
type Service struct {
	webAuthn   *webauthn.WebAuthn
	store      store.Store
	challenges challenge.Cache
	issuer     auth.TokenIssuer
	baseURL    string
	logger     *slog.Logger
}

// New creates a ceremony service for the given relying party identity.
func New(opts Options, st store.Store, challenges challenge.Cache, issuer auth.TokenIssuer) (*Service, error) {
	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: opts.RPDisplayName,
		RPID:          opts.RPID,
		RPOrigins:     []string{opts.RPOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}

	return &Service{
		webAuthn:   w,
		store:      st,
		challenges: challenges,
		issuer:     issuer,
		baseURL:    opts.BaseURL,
		logger:     slog.Default().With("component", "passkey"),
	}, nil
}

// Result is the outcome of a successful ceremony: a session token plus the
// authenticated user. RecoveryCodes is populated only on new-account
// registration and holds the plaintext codes, surfaced exactly once.
type Result struct {
	Token         string
	User          *store.User
	RecoveryCodes []string
}

// Status describes whether the instance has been bootstrapped.
type Status struct {
	HasUser            bool
	RequiresInvitation bool
}

// Status reports whether any account exists yet. Once one does, new
// registrations require an invitation.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	return &Status{HasUser: count > 0, RequiresInvitation: count > 0}, nil
}

// validateUsername returns a human-readable reason the username is
// unacceptable, or empty if it is fine.
func validateUsername(username string) string {
	if len(username) < 3 {
		return "username must be at least 3 characters"
	}
	if len(username) > 32 {
		return "username must be at most 32 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "username must start with a letter and contain only letters, numbers, and underscores"
	}
	return ""
}

// generateSecureToken generates a cryptographically secure random token
// encoded as hex.
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
