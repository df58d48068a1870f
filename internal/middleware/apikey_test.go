package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

type staticAuthenticator struct {
	valid string
	seen  []string
}

func (a *staticAuthenticator) Authenticate(_ context.Context, raw string) error {
	a.seen = append(a.seen, raw)
	if raw != a.valid {
		return apperrors.ErrInvalidAPIKey
	}
	return nil
}

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := &staticAuthenticator{valid: "nfd_good"}
	r := gin.New()
	r.GET("/internal", APIKey(auth), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong key", header: "nfd_bad", status: http.StatusUnauthorized},
		{name: "valid key", header: "  nfd_good ", status: http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/internal", nil)
			if tc.header != "" {
				req.Header.Set(APIKeyHeader, tc.header)
			}
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)

			if tc.status == http.StatusUnauthorized {
				var payload response.Response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
				require.Equal(t, apperrors.ErrInvalidAPIKey.Code, payload.Error.Code)
			}
		})
	}

	// The empty header never reaches the authenticator.
	require.Equal(t, []string{"nfd_bad", "nfd_good"}, auth.seen)
}

func TestAPIKeyMiddlewareWithoutAuthenticator(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/internal", APIKey(nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.Header.Set(APIKeyHeader, "anything")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
