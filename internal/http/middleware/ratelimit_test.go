package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, rps int) echo.MiddlewareFunc {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return RateLimitMiddleware(RateLimitConfig{
		Redis:          rdb,
		RPS:            rps,
		Window:         time.Second,
		RetryAfterHint: true,
	})
}

func hit(t *testing.T, mw echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	mw := newLimiter(t, 3)

	// 20 rapid hits span at most two 1s windows of 3 each, so some must be
	// limited.
	var ok, limited int
	for i := 0; i < 20; i++ {
		rec := hit(t, mw)
		switch rec.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			limited++
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.GreaterOrEqual(t, ok, 3)
	assert.GreaterOrEqual(t, limited, 14)
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	mw := newLimiter(t, 0)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, hit(t, mw).Code)
	}
}
