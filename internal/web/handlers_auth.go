package web

import (
	"net/http"

	"github.com/JonMunkholm/crm/internal/core"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=200"`
	Role     string `json:"role" validate:"omitempty,oneof=admin employee"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        *core.User `json:"user"`
}

func newTokenResponse(res *core.AuthResult) tokenResponse {
	return tokenResponse{AccessToken: res.Token, TokenType: "bearer", User: res.User}
}

// handleRegister creates an account and returns a token for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Register(WithRequestMetadata(r.Context(), r), core.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     core.Role(req.Role),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newTokenResponse(res))
}

// handleLogin exchanges credentials for a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Login(WithRequestMetadata(r.Context(), r), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newTokenResponse(res))
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	_, actor := requestScope(r)
	u, err := s.service.Authenticate(r.Context(), actor.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// handleLogout acknowledges a logout. Tokens are stateless; clients drop them.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}
