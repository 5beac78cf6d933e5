// ABOUTME: JSON request decoding and response writing helpers
// ABOUTME: Maps service errors onto the HTTP status taxonomy

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tomepile/tomepile/internal/passkey"
	"github.com/tomepile/tomepile/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON parses the request body into v. Returns false after writing
// a 400 when the body is malformed.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps a service or store error onto an HTTP response.
// Internal detail never reaches the client; it goes to the log.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrInvalidUsername):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, passkey.ErrInvitationRequired):
		s.writeError(w, http.StatusForbidden, "invitation required")
	case errors.Is(err, passkey.ErrInvitationInvalid):
		s.writeError(w, http.StatusBadRequest, "invitation invalid, used, or expired")
	case errors.Is(err, passkey.ErrSetupTokenInvalid):
		s.writeError(w, http.StatusBadRequest, "setup link invalid, used, or expired")
	case errors.Is(err, store.ErrUsernameTaken):
		s.writeError(w, http.StatusBadRequest, "username already taken")
	case errors.Is(err, passkey.ErrNoRegistrationInProgress):
		s.writeError(w, http.StatusBadRequest, "no registration in progress")
	case errors.Is(err, passkey.ErrNoLoginInProgress):
		s.writeError(w, http.StatusBadRequest, "no login in progress")
	case errors.Is(err, passkey.ErrVerificationFailed):
		s.writeError(w, http.StatusBadRequest, "verification failed")
	case errors.Is(err, passkey.ErrAuthenticationFailed):
		s.writeError(w, http.StatusBadRequest, "authentication failed")
	case errors.Is(err, store.ErrLastCredential):
		s.writeError(w, http.StatusBadRequest, "cannot remove the last passkey")
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error("internal error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
