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

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		client, _ := ClientFromCtx(c)
		return c.String(http.StatusOK, client)
	}, mw...)
	return e
}

func get(e *echo.Echo, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	e := newEcho(APIKeyMiddleware([]string{"k1", " k2 "}))

	assert.Equal(t, http.StatusUnauthorized, get(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "nope").Code)

	rec := get(e, "k2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.String(), 16)
	assert.NotEqual(t, get(e, "k1").Body.String(), rec.Body.String())
}

func TestAPIKeyMiddleware_EmptySetDisablesAuth(t *testing.T) {
	e := newEcho(APIKeyMiddleware(nil))
	rec := get(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Unix(1_700_000_000, 250*int64(time.Millisecond))
	e := newEcho(
		APIKeyMiddleware([]string{"k1", "k2"}),
		RateLimitMiddleware(RateLimitConfig{Redis: rdb, RPS: 2, RetryAfterHint: true, Now: func() time.Time { return now }}),
	)

	assert.Equal(t, http.StatusOK, get(e, "k1").Code)
	assert.Equal(t, http.StatusOK, get(e, "k1").Code)

	rec := get(e, "k1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// separate budget per client
	assert.Equal(t, http.StatusOK, get(e, "k2").Code)

	// next window
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, get(e, "k1").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	e := newEcho(RateLimitMiddleware(RateLimitConfig{Redis: rdb, RPS: 1}))
	for range 3 {
		assert.Equal(t, http.StatusOK, get(e, "").Code)
	}
}
