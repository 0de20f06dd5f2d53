package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/crm/internal/auth"
	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
)

type ctxKey int

const actorKey ctxKey = iota

// TokenParser verifies a bearer token and returns its claims.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticator resolves the user named by a verified token.
type Authenticator interface {
	Authenticate(ctx context.Context, userID string) (*core.User, error)
}

// ErrorResponder writes an error response for a rejected request.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// BearerAuth returns middleware that requires a valid
// "Authorization: Bearer <token>" header for a verified user.
//
// On success the actor is stored in the request context and the user id is
// attached to every log entry for the rest of the request.
func BearerAuth(tokens TokenParser, users Authenticator, fail ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				slog.Warn("auth: missing bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				fail(w, r, fmt.Errorf("not authenticated: %w", core.ErrUnauthorized))
				return
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				slog.Warn("auth: invalid bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				fail(w, r, err)
				return
			}

			user, err := users.Authenticate(r.Context(), claims.Subject)
			if err != nil {
				fail(w, r, err)
				return
			}

			ctx := WithActor(r.Context(), core.ActorFromUser(user))
			ctx = logging.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose role is not admin. It must run after
// BearerAuth.
func RequireAdmin(fail ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !core.IsAdmin(actor) {
				fail(w, r, fmt.Errorf("admin role required: %w", core.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithActor stores the authenticated actor in ctx.
func WithActor(ctx context.Context, actor core.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor stored by BearerAuth.
func ActorFromContext(ctx context.Context) (core.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(core.Actor)
	return actor, ok
}
