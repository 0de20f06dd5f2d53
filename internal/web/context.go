package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/web/middleware"
)

type ctxKey int

const kindKey ctxKey = iota

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // Already processed by middleware.TrustedRealIP
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// requestScope returns the audit-enriched context and the authenticated
// actor of r.
func requestScope(r *http.Request) (context.Context, core.Actor) {
	actor, _ := middleware.ActorFromContext(r.Context())
	return WithRequestMetadata(r.Context(), r), actor
}

// withKind resolves the {kind} URL parameter against the registry.
func (s *Server) withKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "kind")
		kind, ok := core.Get(key)
		if !ok {
			s.respondError(w, r, fmt.Errorf("kind %q: %w", key, core.ErrNotFound))
			return
		}
		ctx := context.WithValue(r.Context(), kindKey, kind)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// kindFrom returns the kind resolved by withKind.
func kindFrom(r *http.Request) *core.KindDefinition {
	kind, _ := r.Context().Value(kindKey).(*core.KindDefinition)
	return kind
}
