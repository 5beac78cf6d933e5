// ABOUTME: Public (unauthenticated) endpoints: registration, login, recovery,
// ABOUTME: token verification, and validation of invitation and setup links

package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		InvitationToken string `json:"invitationToken"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	options, ceremonyID, err := s.service.BeginRegistration(r.Context(), req.Username, req.InvitationToken)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"options":    options,
		"ceremonyId": ceremonyID,
	})
}

func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string          `json:"username"`
		CeremonyID string          `json:"ceremonyId"`
		Credential json.RawMessage `json:"credential"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.FinishRegistration(r.Context(), req.Username, req.CeremonyID, req.Credential)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":         result.Token,
		"user":          toUserResponse(result.User),
		"recoveryCodes": result.RecoveryCodes,
	})
}

func (s *Server) handleLoginOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	options, ceremonyID, err := s.service.BeginLogin(r.Context(), req.Username)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"options":    options,
		"ceremonyId": ceremonyID,
	})
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string          `json:"username"`
		CeremonyID string          `json:"ceremonyId"`
		Credential json.RawMessage `json:"credential"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.FinishLogin(r.Context(), req.Username, req.CeremonyID, req.Credential)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleLoginRecovery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		RecoveryCode string `json:"recoveryCode"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.LoginWithRecoveryCode(r.Context(), req.Username, req.RecoveryCode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

// handleVerifyToken lets the book-tracking side of the application check a
// session token and resolve it to a user. Invalid tokens are a negative
// result, not an error.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	claims, err := s.issuer.Validate(req.Token)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  toUserResponse(user),
	})
}

func (s *Server) handleValidateInvitation(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ValidateInvitation(r.Context(), r.PathValue("token")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) handleValidateSetupToken(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.ValidateSetupToken(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"username": user.Username,
	})
}

func (s *Server) handleSetupRegisterOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	options, ceremonyID, err := s.service.BeginSetupRegistration(r.Context(), req.Token)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"options":    options,
		"ceremonyId": ceremonyID,
	})
}

func (s *Server) handleSetupRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token      string          `json:"token"`
		CeremonyID string          `json:"ceremonyId"`
		DeviceName string          `json:"deviceName"`
		Credential json.RawMessage `json:"credential"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.FinishSetupRegistration(r.Context(), req.Token, req.CeremonyID, req.DeviceName, req.Credential)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}
