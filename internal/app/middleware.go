package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/surveyforge/surveyforge/internal/auth"
	"github.com/surveyforge/surveyforge/internal/observability"
)

// DefaultRateLimitWindow bounds per-IP request rates when unconfigured.
const DefaultRateLimitWindow = time.Minute

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Verifier *auth.Verifier
	Metrics  *observability.Metrics
}

// MiddlewareStack installs the SurveyForge middleware chain: recovery,
// request ids, security headers, rate limiting, metrics, then identity
// resolution so every downstream handler sees the caller.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	requests := 120
	window := DefaultRateLimitWindow
	if cfg.Config != nil {
		if cfg.Config.RateLimitRequests > 0 {
			requests = cfg.Config.RateLimitRequests
		}
		if cfg.Config.RateLimitWindow > 0 {
			window = cfg.Config.RateLimitWindow
		}
	}

	identity := auth.Middleware{Verifier: cfg.Verifier, Logger: cfg.Logger}

	stack := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		secureMiddleware.Handler,
		httprate.LimitByIP(requests, window),
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	if cfg.Verifier != nil {
		stack = append(stack, identity.Handler)
	}
	return stack
}
