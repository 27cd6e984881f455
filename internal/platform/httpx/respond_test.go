package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemUsesProblemJSONMediaType(t *testing.T) {
	rec := httptest.NewRecorder()

	Problem(rec, http.StatusNotFound, "Not Found", "role does not exist")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), `"type":"about:blank"`)
	require.Contains(t, rec.Body.String(), `"detail":"role does not exist"`)
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrInvariant, http.StatusUnprocessableEntity},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.want, rec.Code, "error %v", tc.err)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"editor","nmae":"typo"}`))
	require.Error(t, DecodeJSON(req, &body))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"editor"}`))
	require.NoError(t, DecodeJSON(req, &body))
	require.Equal(t, "editor", body.Name)
}
