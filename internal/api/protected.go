// ABOUTME: Authenticated endpoints: passkey management, setup links, invitations
// ABOUTME: All handlers rely on the bearer middleware having loaded the user

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tomepile/tomepile/internal/auth"
	"github.com/tomepile/tomepile/internal/store"
)

// passkeyResponse is the client-facing credential shape. Key material is
// never exposed.
type passkeyResponse struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"deviceName,omitempty"`
	Transports []string  `json:"transports,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toPasskeyResponse(c *store.Credential) passkeyResponse {
	resp := passkeyResponse{
		ID:         c.ID,
		DeviceName: c.DeviceName,
		CreatedAt:  c.CreatedAt,
	}
	if c.Transports != "" {
		_ = json.Unmarshal([]byte(c.Transports), &resp.Transports)
	}
	return resp
}

func (s *Server) handleListPasskeys(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	creds, err := s.service.ListCredentials(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	passkeys := make([]passkeyResponse, len(creds))
	for i, c := range creds {
		passkeys[i] = toPasskeyResponse(c)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"passkeys": passkeys})
}

func (s *Server) handleAddOptions(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	options, ceremonyID, err := s.service.BeginAddCredential(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"options":    options,
		"ceremonyId": ceremonyID,
	})
}

func (s *Server) handleAddVerify(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req struct {
		CeremonyID string          `json:"ceremonyId"`
		DeviceName string          `json:"deviceName"`
		Credential json.RawMessage `json:"credential"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cred, err := s.service.FinishAddCredential(r.Context(), user, req.CeremonyID, req.DeviceName, req.Credential)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"passkey": toPasskeyResponse(cred)})
}

func (s *Server) handleDeletePasskey(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	if err := s.service.RemoveCredential(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerateSetupToken(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	token, setupURL, err := s.service.CreateSetupToken(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":     token.Token,
		"expiresAt": token.ExpiresAt,
		"setupUrl":  setupURL,
	})
}

func (s *Server) handleGenerateInvitation(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	inv, inviteURL, err := s.service.CreateInvitation(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":     inv.Token,
		"expiresAt": inv.ExpiresAt,
		"inviteUrl": inviteURL,
	})
}
