package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoke(t *testing.T, mw echo.MiddlewareFunc, key string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	mw := APIKeyMiddleware("sekrit")

	assert.Equal(t, http.StatusUnauthorized, invoke(t, mw, "").Code)
	assert.Equal(t, http.StatusUnauthorized, invoke(t, mw, "wrong").Code)
	assert.Equal(t, http.StatusOK, invoke(t, mw, "sekrit").Code)
}

func TestAPIKeyMiddlewareDisabled(t *testing.T) {
	mw := APIKeyMiddleware("")

	assert.Equal(t, http.StatusOK, invoke(t, mw, "").Code)
	assert.Equal(t, http.StatusOK, invoke(t, mw, "anything").Code)
}
