package access

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surveyforge/surveyforge/internal/shared"
)

func guardRequest(t *testing.T, guard Guard, req Requirement, id *shared.Identity) *httptest.ResponseRecorder {
	t.Helper()
	handler := guard.Require(req)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest(http.MethodGet, "/admin/surveys", nil)
	if id != nil {
		r = r.WithContext(shared.ContextWithIdentity(r.Context(), id))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec
}

func TestGuardAllowsPassThrough(t *testing.T) {
	guard := Guard{Engine: editorEngine("survey:view")}
	rec := guardRequest(t, guard, AllOf("survey:view"), &shared.Identity{UserID: "u1", Role: "editor"})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGuardAnonymousDenialIs401(t *testing.T) {
	guard := Guard{Engine: newTestEngine(nil, nil, nil)}
	rec := guardRequest(t, guard, AllOf("survey:view"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "authentication required")
}

func TestGuardAuthenticatedDenialIs403(t *testing.T) {
	guard := Guard{Engine: editorEngine("survey:view")}
	rec := guardRequest(t, guard, AllOf("survey:delete"), &shared.Identity{UserID: "u1", Role: "editor"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "survey:delete")
}

func TestGuardPublicAdmitsAnonymous(t *testing.T) {
	guard := Guard{Engine: newTestEngine(nil, nil, nil)}
	rec := guardRequest(t, guard, Public(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
