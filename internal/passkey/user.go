// ABOUTME: Adapter presenting stored users and credentials as webauthn.User
// ABOUTME: Also converts verified webauthn credentials into store rows

package passkey

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/tomepile/tomepile/internal/store"
)

// webauthnUser implements the webauthn.User interface. For registration of
// a brand-new account the user row does not exist yet, so the adapter is
// built from raw fields rather than a *store.User.
type webauthnUser struct {
	id    []byte
	name  string
	creds []webauthn.Credential
}

func newWebauthnUser(user *store.User, creds []*store.Credential) *webauthnUser {
	return &webauthnUser{
		id:    []byte(user.ID),
		name:  user.Username,
		creds: webauthnCredentials(creds),
	}
}

func (u *webauthnUser) WebAuthnID() []byte          { return u.id }
func (u *webauthnUser) WebAuthnName() string        { return u.name }
func (u *webauthnUser) WebAuthnDisplayName() string { return u.name }

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

// webauthnCredentials converts stored rows into the library's credential type.
func webauthnCredentials(creds []*store.Credential) []webauthn.Credential {
	out := make([]webauthn.Credential, len(creds))
	for i, c := range creds {
		out[i] = webauthn.Credential{
			ID:              c.CredentialID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		}
		if c.Transports != "" {
			var transports []protocol.AuthenticatorTransport
			_ = json.Unmarshal([]byte(c.Transports), &transports)
			out[i].Transport = transports
		}
	}
	return out
}

// credentialExclusions builds the descriptor list that stops an
// authenticator from enrolling twice for the same account.
func credentialExclusions(creds []*store.Credential) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		out[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.CredentialID,
		}
	}
	return out
}

// newCredentialRow converts a verified webauthn credential into a store row.
func newCredentialRow(userID, deviceName string, cred *webauthn.Credential) (*store.Credential, error) {
	transportsJSON, err := json.Marshal(cred.Transport)
	if err != nil {
		return nil, fmt.Errorf("encoding transports: %w", err)
	}

	return &store.Credential{
		ID:              uuid.NewString(),
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      string(transportsJSON),
		SignCount:       cred.Authenticator.SignCount,
		DeviceName:      deviceName,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
