package access

import (
	"log/slog"
	"net/http"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
	"github.com/surveyforge/surveyforge/internal/shared"
)

// Guard wires requirement evaluation into HTTP middleware.
type Guard struct {
	Engine *Engine
	Logger *slog.Logger
}

// Require evaluates the requirement before every request in the group.
// Anonymous denials map to 401, authenticated ones to 403.
func (g Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			decision := g.Engine.Decide(r.Context(), req, identity)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			if g.Logger != nil {
				g.Logger.Info("access denied",
					slog.String("path", r.URL.Path),
					slog.String("reason", decision.Reason),
				)
			}
			if identity == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", decision.Reason)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		})
	}
}

// RequireAll guards a group behind every given permission code.
func (g Guard) RequireAll(codes ...string) func(http.Handler) http.Handler {
	return g.Require(AllOf(codes...))
}

// RequireAny guards a group behind at least one of the given permission codes.
func (g Guard) RequireAny(codes ...string) func(http.Handler) http.Handler {
	return g.Require(AnyOf(codes...))
}

// RequireRoles guards a group behind a token role check.
func (g Guard) RequireRoles(names ...string) func(http.Handler) http.Handler {
	return g.Require(Roles(names...))
}
