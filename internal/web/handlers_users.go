package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
)

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin employee"`
	Verified *bool   `json:"verified"`
}

type changePasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

// handleListUsers returns every account.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)
	users, err := s.service.ListUsers(ctx, actor)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, users)
}

// handleGetUser returns one account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)
	u, err := s.service.GetUser(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// handleUpdateUser edits an account's email, name, role or verified flag.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)

	var req updateUserRequest
	if err := s.bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	patch := core.UserPatch{Email: req.Email, Name: req.Name, Verified: req.Verified}
	if req.Role != nil {
		role := core.Role(strings.TrimSpace(*req.Role))
		patch.Role = &role
	}

	u, err := s.service.UpdateUser(ctx, actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// handleChangePassword sets a new password for an account.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)

	var req changePasswordRequest
	if err := s.bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.ChangePassword(ctx, actor, chi.URLParam(r, "id"), req.Password); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}

// handleDeleteUser removes an account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)
	if err := s.service.DeleteUser(ctx, actor, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters: entity, action, user_id, skip, limit.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)

	skip, err := parseIntParam(r, "skip", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := parseIntParam(r, "limit", core.DefaultAuditLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	entries, err := s.service.ListAudit(ctx, actor, core.AuditFilter{
		Entity: q.Get("entity"),
		Action: core.AuditAction(q.Get("action")),
		UserID: q.Get("user_id"),
		Offset: skip,
		Limit:  limit,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}
