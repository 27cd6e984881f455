package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/surveyforge/surveyforge/internal/shared"
)

func newTestRedisCache(t *testing.T, dir *memoryDirectory) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, newTestResolver(dir, nil, nil), time.Minute, nil, nil), mr
}

func TestRedisCacheStoresAndServes(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"u1": {CustomPermissions: []string{"survey:view"}},
	}}
	cache, mr := newTestRedisCache(t, dir)
	ctx := context.Background()

	require.Equal(t, []string{"survey:view"}, cache.Permissions(ctx, "u1"))
	require.True(t, mr.Exists("access:perms:u1"))

	require.Equal(t, []string{"survey:view"}, cache.Permissions(ctx, "u1"))
	require.Equal(t, 1, dir.calls)
}

func TestRedisCacheExpiry(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"u1": {CustomPermissions: []string{"survey:view"}},
	}}
	cache, mr := newTestRedisCache(t, dir)
	ctx := context.Background()

	cache.Permissions(ctx, "u1")
	mr.FastForward(2 * time.Minute)
	cache.Permissions(ctx, "u1")
	require.Equal(t, 2, dir.calls)
}

func TestRedisCacheInvalidate(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"u1": {CustomPermissions: []string{"survey:view"}},
		"u2": {CustomPermissions: []string{"dashboard:view"}},
	}}
	cache, mr := newTestRedisCache(t, dir)
	ctx := context.Background()

	cache.Permissions(ctx, "u1")
	cache.Permissions(ctx, "u2")

	require.NoError(t, cache.Invalidate(ctx, "u1"))
	require.False(t, mr.Exists("access:perms:u1"))
	require.True(t, mr.Exists("access:perms:u2"))

	require.NoError(t, cache.InvalidateAll(ctx))
	require.False(t, mr.Exists("access:perms:u2"))
}

func TestAdminFlushReachesActiveRedisBackend(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"u1": {Role: "editor"},
	}}
	roles := &memoryRoleStore{roles: map[string]RoleGrants{
		"editor": {Name: "editor", Permissions: []string{"survey:update"}},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rcache := NewRedisCache(client, newTestResolver(dir, roles, nil), time.Minute, nil, nil)
	engine := NewEngine(rcache, nil)
	guard := Guard{Engine: engine}
	handler := NewHandler(nil, rcache, guard)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithIdentity(r.Context(), &shared.Identity{UserID: "root", Role: RoleSuperAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Route("/admin/access", handler.MountRoutes)

	ctx := context.Background()
	id := &shared.Identity{UserID: "u1", Role: "editor"}
	require.True(t, engine.Decide(ctx, AllOf("survey:update"), id).Allowed)

	// Revoked at the store, but the cached grant still answers.
	roles.roles["editor"] = RoleGrants{Name: "editor", Permissions: []string{"survey:view"}}
	require.True(t, engine.Decide(ctx, AllOf("survey:update"), id).Allowed)

	// The admin flush hits the cache the engine reads through, so the
	// revocation takes effect immediately.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/access/cache", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, engine.Decide(ctx, AllOf("survey:update"), id).Allowed)

	// Per-user invalidation behaves the same once the entry repopulates.
	require.True(t, engine.Decide(ctx, AllOf("survey:view"), id).Allowed)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/access/cache/u1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, mr.Exists("access:perms:u1"))
}

func TestRedisCacheFallsThroughOnOutage(t *testing.T) {
	dir := &memoryDirectory{users: map[string]UserGrants{
		"u1": {CustomPermissions: []string{"survey:view"}},
	}}
	cache, mr := newTestRedisCache(t, dir)
	mr.Close()

	require.Equal(t, []string{"survey:view"}, cache.Permissions(context.Background(), "u1"))
}
