// ABOUTME: HTTP API server wiring the ceremony service onto route handlers
// ABOUTME: Public ceremony endpoints plus bearer-authenticated device management

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tomepile/tomepile/internal/auth"
	"github.com/tomepile/tomepile/internal/passkey"
	"github.com/tomepile/tomepile/internal/store"
)

// Server hosts the authentication HTTP surface.
type Server struct {
	service *passkey.Service
	store   store.Store
	issuer  auth.TokenIssuer
	origins []string
	logger  *slog.Logger
}

// New creates an API server. allowedOrigins configures CORS; an empty
// list disables cross-origin access entirely.
func New(service *passkey.Service, st store.Store, issuer auth.TokenIssuer, allowedOrigins []string) *Server {
	return &Server{
		service: service,
		store:   st,
		issuer:  issuer,
		origins: allowedOrigins,
		logger:  slog.Default().With("component", "api"),
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	authed := auth.Middleware(s.store, s.issuer)

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /register/options", s.handleRegisterOptions)
	mux.HandleFunc("POST /register/verify", s.handleRegisterVerify)
	mux.HandleFunc("POST /login/options", s.handleLoginOptions)
	mux.HandleFunc("POST /login/verify", s.handleLoginVerify)
	mux.HandleFunc("POST /login/recovery", s.handleLoginRecovery)
	mux.HandleFunc("POST /verify-token", s.handleVerifyToken)

	mux.Handle("GET /passkeys", authed(http.HandlerFunc(s.handleListPasskeys)))
	mux.Handle("POST /passkeys/add-options", authed(http.HandlerFunc(s.handleAddOptions)))
	mux.Handle("POST /passkeys/add-verify", authed(http.HandlerFunc(s.handleAddVerify)))
	mux.Handle("DELETE /passkeys/{id}", authed(http.HandlerFunc(s.handleDeletePasskey)))
	mux.Handle("POST /setup-token/generate", authed(http.HandlerFunc(s.handleGenerateSetupToken)))
	mux.Handle("POST /invitation/generate", authed(http.HandlerFunc(s.handleGenerateInvitation)))

	mux.HandleFunc("GET /setup-token/validate/{token}", s.handleValidateSetupToken)
	mux.HandleFunc("POST /setup-token/register-options", s.handleSetupRegisterOptions)
	mux.HandleFunc("POST /setup-token/register-verify", s.handleSetupRegisterVerify)
	mux.HandleFunc("GET /invitation/validate/{token}", s.handleValidateInvitation)

	return s.corsMiddleware(mux)
}

// userResponse is the client-facing user shape.
type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	IsInitialUser bool      `json:"isInitialUser"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		IsInitialUser: u.IsInitialUser,
		CreatedAt:     u.CreatedAt,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{
		"hasUser":            status.HasUser,
		"requiresInvitation": status.RequiresInvitation,
	})
}
