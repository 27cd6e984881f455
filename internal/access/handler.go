package access

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
)

// AdminCache is the invalidation surface of whichever permission cache the
// engine reads through. Both the memory and redis caches implement it.
type AdminCache interface {
	PermissionSource
	Invalidate(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

// Handler exposes administrative cache controls and effective-permission
// inspection over the engine's active cache backend. With the memory backend
// invalidation is per instance; other instances' entries age out on their own
// TTL. With the redis backend it reaches every instance.
type Handler struct {
	logger *slog.Logger
	cache  AdminCache
	guard  Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, cache AdminCache, guard Guard) *Handler {
	return &Handler{logger: logger, cache: cache, guard: guard}
}

// MountRoutes registers access administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("user:view"))
		r.Get("/users/{userID}/permissions", h.effectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("permission:manage"))
		r.Delete("/cache/{userID}", h.invalidate)
		r.Delete("/cache", h.invalidateAll)
	})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	perms := h.cache.Permissions(r.Context(), userID)
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": perms,
	})
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.cache.Invalidate(r.Context(), userID); err != nil {
		if h.logger != nil {
			h.logger.Error("invalidate access cache", slog.String("user_id", userID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if h.logger != nil {
		h.logger.Info("access cache invalidated", slog.String("user_id", userID))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidateAll(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.InvalidateAll(r.Context()); err != nil {
		if h.logger != nil {
			h.logger.Error("flush access cache", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if h.logger != nil {
		h.logger.Info("access cache flushed")
	}
	w.WriteHeader(http.StatusNoContent)
}
