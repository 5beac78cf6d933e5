// ABOUTME: Pending ceremony state stored in the challenge cache between options and verify
// ABOUTME: Keys are namespaced per flow and carry a random per-attempt ceremony ID

package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/tomepile/tomepile/internal/challenge"
)

// Challenge key namespaces. A login verify can never consume a
// registration challenge and vice versa.
const (
	regKeyPrefix   = "reg:"
	loginKeyPrefix = "login:"
	addKeyPrefix   = "add:"
	setupKeyPrefix = "setup:"
)

// pendingCeremony is the state parked between the options call and the
// verify call. UserID is empty for login attempts against unknown
// usernames, which still get a challenge for uniformity.
type pendingCeremony struct {
	Session         webauthn.SessionData `json:"session"`
	Username        string               `json:"username,omitempty"`
	UserID          string               `json:"userId,omitempty"`
	InvitationToken string               `json:"invitationToken,omitempty"`
	SetupToken      string               `json:"setupToken,omitempty"`
}

// newCeremony stores pending state under a fresh ceremony ID and returns
// the ID for the client to echo back.
func (s *Service) newCeremony(ctx context.Context, prefix string, pending *pendingCeremony) (string, error) {
	ceremonyID, err := generateSecureToken(16)
	if err != nil {
		return "", fmt.Errorf("generating ceremony id: %w", err)
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return "", fmt.Errorf("encoding ceremony state: %w", err)
	}
	if err := s.challenges.Put(ctx, prefix+ceremonyID, data); err != nil {
		return "", fmt.Errorf("storing ceremony state: %w", err)
	}
	return ceremonyID, nil
}

// takeCeremony consumes pending state. notInProgress is returned when the
// ceremony was never started, already consumed, or expired.
func (s *Service) takeCeremony(ctx context.Context, prefix, ceremonyID string, notInProgress error) (*pendingCeremony, error) {
	data, err := s.challenges.Take(ctx, prefix+ceremonyID)
	if errors.Is(err, challenge.ErrNoChallenge) {
		return nil, notInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("taking ceremony state: %w", err)
	}

	var pending pendingCeremony
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("decoding ceremony state: %w", err)
	}
	return &pending, nil
}
