// ABOUTME: Store interface and data types for tomepile authentication persistence
// ABOUTME: Defines users, passkey credentials, recovery codes, and token entities

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when trying to create a user with an existing username
var ErrUsernameTaken = errors.New("username already taken")

// ErrLastCredential is returned when deleting a credential would leave
// the account with no way to log in
var ErrLastCredential = errors.New("cannot delete the last credential")

// ErrCredentialExists is returned when registering an authenticator that
// is already registered
var ErrCredentialExists = errors.New("credential already registered")

// ErrTokenNotFound is returned when an invitation or setup token doesn't exist
var ErrTokenNotFound = errors.New("token not found")

// ErrTokenUsed is returned when trying to consume an already-used token
var ErrTokenUsed = errors.New("token already used")

// ErrTokenExpired is returned when a token has expired
var ErrTokenExpired = errors.New("token expired")

// ErrCodeUsed is returned when trying to consume an already-used recovery code
var ErrCodeUsed = errors.New("recovery code already used")

// User represents an account holder.
// IsInitialUser marks the first-ever account, which registered without
// an invitation.
type User struct {
	ID            string
	Username      string
	IsInitialUser bool
	CreatedAt     time.Time
}

// Credential represents a passkey bound to a user.
type Credential struct {
	ID              string
	UserID          string
	CredentialID    []byte // opaque public identifier from the authenticator
	PublicKey       []byte
	AttestationType string
	Transports      string // JSON array
	SignCount       uint32
	DeviceName      string
	CreatedAt       time.Time
}

// RecoveryCode represents a single-use login fallback. Only the bcrypt
// hash is persisted; the plaintext is shown once at registration time.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// InvitationToken authorizes exactly one new account registration.
type InvitationToken struct {
	ID        string
	CreatedBy string // user ID of the inviter
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string // user ID who registered with the invitation
}

// SetupToken authorizes enrolling one additional credential for an
// existing account from an unauthenticated device.
type SetupToken struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Store defines the interface for authentication persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// Credentials
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error)
	GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)
	UpdateCredentialSignCount(ctx context.Context, id string, signCount uint32) error
	DeleteCredential(ctx context.Context, userID, id string) error
	CountCredentials(ctx context.Context, userID string) (int, error)

	// Recovery codes
	GetUnusedRecoveryCodes(ctx context.Context, userID string) ([]*RecoveryCode, error)
	UseRecoveryCode(ctx context.Context, id string) error

	// Invitation tokens
	CreateInvitation(ctx context.Context, inv *InvitationToken) error
	GetInvitationByToken(ctx context.Context, token string) (*InvitationToken, error)
	UseInvitation(ctx context.Context, token, usedBy string) error

	// Setup tokens
	CreateSetupToken(ctx context.Context, st *SetupToken) error
	GetSetupTokenByToken(ctx context.Context, token string) (*SetupToken, error)
	UseSetupToken(ctx context.Context, token string) error

	// Multi-row commits
	CreateUserRegistration(ctx context.Context, user *User, cred *Credential, codeHashes []string, invitationToken string) error
	AddCredentialWithSetupToken(ctx context.Context, cred *Credential, setupToken string) error

	// Maintenance
	DeleteExpiredTokens(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
