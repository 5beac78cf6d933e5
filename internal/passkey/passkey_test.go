// ABOUTME: Service-level tests for ceremony preconditions and token flows
// ABOUTME: Uses a real SQLite store and memory challenge cache; the cryptographic
// ceremony itself is exercised only up to options generation

package passkey

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomepile/tomepile/internal/auth"
	"github.com/tomepile/tomepile/internal/challenge"
	"github.com/tomepile/tomepile/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cache := challenge.NewMemoryCache(5 * time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	issuer := auth.NewJWTIssuer([]byte("test-secret-at-least-32-bytes-long!!"), time.Hour)

	svc, err := New(Options{
		RPID:          "localhost",
		RPOrigin:      "http://localhost",
		RPDisplayName: "tomepile",
		BaseURL:       "http://localhost",
	}, st, cache, issuer)
	require.NoError(t, err)
	return svc, st
}

// seedUser creates a user with one credential and optional recovery codes,
// bypassing the ceremony.
func seedUser(t *testing.T, st *store.SQLiteStore, username string, codeHashes []string) *store.User {
	t.Helper()
	user := &store.User{
		ID:            uuid.NewString(),
		Username:      username,
		IsInitialUser: true,
		CreatedAt:     time.Now().UTC(),
	}
	cred := &store.Credential{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		CredentialID: []byte("cred-" + username),
		PublicKey:    []byte("pk"),
		CreatedAt:    time.Now().UTC(),
	}
	if codeHashes == nil {
		codeHashes = []string{}
	}
	require.NoError(t, st.CreateUserRegistration(context.Background(), user, cred, codeHashes, ""))
	return user
}

func TestStatus(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.HasUser)
	assert.False(t, status.RequiresInvitation)

	seedUser(t, st, "alice", nil)

	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.HasUser)
	assert.True(t, status.RequiresInvitation)
}

func TestBeginRegistration_Bootstrap(t *testing.T) {
	svc, _ := newTestService(t)

	options, ceremonyID, err := svc.BeginRegistration(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.NotEmpty(t, ceremonyID)
	assert.Equal(t, "alice", options.Response.User.Name)
	assert.NotEmpty(t, options.Response.Challenge)
}

func TestBeginRegistration_InvalidUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, username := range []string{"ab", "9starts", "has space", "way_too_long_username_over_32_chars_x"} {
		_, _, err := svc.BeginRegistration(ctx, username, "")
		assert.ErrorIs(t, err, ErrInvalidUsername, "username %q", username)
	}
}

func TestBeginRegistration_InvitationGate(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", nil)

	// Without an invitation
	_, _, err := svc.BeginRegistration(ctx, "bob", "")
	assert.ErrorIs(t, err, ErrInvitationRequired)

	// With a bogus invitation
	_, _, err = svc.BeginRegistration(ctx, "bob", "no-such-token")
	assert.ErrorIs(t, err, ErrInvitationInvalid)

	// With a valid invitation
	inv, inviteURL, err := svc.CreateInvitation(ctx, alice.ID)
	require.NoError(t, err)
	assert.Contains(t, inviteURL, inv.Token)

	_, ceremonyID, err := svc.BeginRegistration(ctx, "bob", inv.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, ceremonyID)
}

func TestBeginRegistration_UsernameTaken(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", nil)
	inv, _, err := svc.CreateInvitation(ctx, alice.ID)
	require.NoError(t, err)

	_, _, err = svc.BeginRegistration(ctx, "alice", inv.Token)
	assert.ErrorIs(t, err, store.ErrUsernameTaken)
}

func TestFinishRegistration_NoCeremony(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.FinishRegistration(context.Background(), "alice", "bogus-ceremony", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoRegistrationInProgress)
}

func TestBeginLogin_UniformResponse(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedUser(t, st, "alice", nil)

	// Known user: allow-list carries the credential
	options, ceremonyID, err := svc.BeginLogin(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, ceremonyID)
	assert.Len(t, options.Response.AllowedCredentials, 1)

	// Unknown user: same shape, empty allow-list
	options, ceremonyID, err = svc.BeginLogin(ctx, "nobody")
	require.NoError(t, err)
	assert.NotEmpty(t, ceremonyID)
	assert.Empty(t, options.Response.AllowedCredentials)
	assert.NotEmpty(t, options.Response.Challenge)
}

func TestFinishLogin_TakeOnce(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedUser(t, st, "alice", nil)
	_, ceremonyID, err := svc.BeginLogin(ctx, "alice")
	require.NoError(t, err)

	// A malformed assertion consumes the challenge and fails generically
	_, err = svc.FinishLogin(ctx, "alice", ceremonyID, []byte(`not json`))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// The second attempt finds no pending ceremony
	_, err = svc.FinishLogin(ctx, "alice", ceremonyID, []byte(`not json`))
	assert.ErrorIs(t, err, ErrNoLoginInProgress)
}

func TestFinishLogin_UnknownUserIsGeneric(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, ceremonyID, err := svc.BeginLogin(ctx, "nobody")
	require.NoError(t, err)

	_, err = svc.FinishLogin(ctx, "nobody", ceremonyID, []byte(`not json`))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestLoginWithRecoveryCode(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	plain, hashes, err := generateRecoveryCodes(3)
	require.NoError(t, err)
	seedUser(t, st, "alice", hashes)

	// Dashed, lowercase, and spaced variants all work
	result, err := svc.LoginWithRecoveryCode(ctx, "alice", plain[0])
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)
	assert.NotEmpty(t, result.Token)

	// The used code is burned
	_, err = svc.LoginWithRecoveryCode(ctx, "alice", plain[0])
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// Other codes remain valid, in any input format
	spaced := "  " + plain[1][:5] + " " + plain[1][6:] + "  "
	_, err = svc.LoginWithRecoveryCode(ctx, "alice", spaced)
	require.NoError(t, err)

	// Unknown user and wrong code fail identically
	_, errUser := svc.LoginWithRecoveryCode(ctx, "nobody", plain[2])
	_, errCode := svc.LoginWithRecoveryCode(ctx, "alice", "AAAAA-AAAAA")
	assert.ErrorIs(t, errUser, ErrAuthenticationFailed)
	assert.ErrorIs(t, errCode, ErrAuthenticationFailed)
	assert.Equal(t, errUser, errCode)
}

func TestSetupTokenFlow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", nil)

	setupTok, setupURL, err := svc.CreateSetupToken(ctx, alice.ID)
	require.NoError(t, err)
	assert.Contains(t, setupURL, setupTok.Token)
	assert.WithinDuration(t, time.Now().Add(SetupTokenDuration), setupTok.ExpiresAt, 5*time.Second)

	user, err := svc.ValidateSetupToken(ctx, setupTok.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	// Enrollment options exclude the existing credential
	options, ceremonyID, err := svc.BeginSetupRegistration(ctx, setupTok.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, ceremonyID)
	assert.Len(t, options.Response.CredentialExcludeList, 1)

	// A ceremony ID from a different token does not finish
	_, err = svc.FinishSetupRegistration(ctx, "other-token", ceremonyID, "tablet", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoRegistrationInProgress)

	_, err = svc.ValidateSetupToken(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrSetupTokenInvalid)
}

func TestValidateInvitation_UsedAndExpired(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", nil)

	inv, _, err := svc.CreateInvitation(ctx, alice.ID)
	require.NoError(t, err)
	require.NoError(t, st.UseInvitation(ctx, inv.Token, alice.ID))
	assert.ErrorIs(t, svc.ValidateInvitation(ctx, inv.Token), ErrInvitationInvalid)

	expired := &store.InvitationToken{
		ID:        uuid.NewString(),
		CreatedBy: alice.ID,
		Token:     uuid.NewString(),
		CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-24 * time.Hour),
	}
	require.NoError(t, st.CreateInvitation(ctx, expired))
	assert.ErrorIs(t, svc.ValidateInvitation(ctx, expired.Token), ErrInvitationInvalid)
}

func TestRemoveCredential_LastCredential(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", nil)
	creds, err := svc.ListCredentials(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)

	err = svc.RemoveCredential(ctx, alice.ID, creds[0].ID)
	assert.ErrorIs(t, err, store.ErrLastCredential)
}

func TestBeginAddCredential(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", nil)
	user, err := st.GetUser(ctx, alice.ID)
	require.NoError(t, err)

	options, ceremonyID, err := svc.BeginAddCredential(ctx, user)
	require.NoError(t, err)
	assert.NotEmpty(t, ceremonyID)
	assert.Len(t, options.Response.CredentialExcludeList, 1)

	// Finishing under a different user fails
	bob := seedUser(t, st, "bob", nil)
	_, err = svc.FinishAddCredential(ctx, bob, ceremonyID, "phone", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoRegistrationInProgress)
}
