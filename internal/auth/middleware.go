package auth

import (
	"log/slog"
	"net/http"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
	"github.com/surveyforge/surveyforge/internal/shared"
)

// Middleware resolves the caller identity from the Authorization header.
// Requests without a token proceed anonymously; routes decide later whether
// that is acceptable.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Handler installs identity resolution on the request context.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := BearerToken(header)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		identity, err := m.Verifier.Verify(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("reject bearer token", slog.Any("error", err))
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
