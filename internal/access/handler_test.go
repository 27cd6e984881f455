package access

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/surveyforge/surveyforge/internal/shared"
)

func TestEffectivePermissionsEndpoint(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"root": {Role: RoleSuperAdmin},
		"u1":   {CustomPermissions: []string{"survey:view"}},
	}}
	catalog := &memoryCatalog{codes: []string{"survey:view", "survey:update"}}

	cache := NewCache(newTestResolver(dir, nil, catalog), time.Minute, nil, nil)
	guard := Guard{Engine: NewEngine(cache, nil)}
	handler := NewHandler(nil, cache, guard)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: "root", Role: RoleSuperAdmin})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/admin/access", handler.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/access/users/u1/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID      string   `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "u1", body.UserID)
	require.Equal(t, []string{"survey:view"}, body.Permissions)

	// Unknown users resolve to an empty set, not an error.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/access/users/ghost/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Permissions)

	// Cache invalidation endpoints.
	require.Equal(t, 2, cache.Len())
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/access/cache/u1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, cache.Len())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/access/cache", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 0, cache.Len())
}

func TestAdminRoutesAreGuarded(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"u1": {CustomPermissions: []string{"survey:view"}},
	}}
	cache := NewCache(newTestResolver(dir, nil, nil), time.Minute, nil, nil)
	guard := Guard{Engine: NewEngine(cache, nil)}
	handler := NewHandler(nil, cache, guard)

	r := chi.NewRouter()
	r.Route("/admin/access", handler.MountRoutes)

	// Anonymous caller.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/access/cache", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated caller without permission:manage.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/admin/access/cache", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: "u1", Role: "viewer"}))
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
