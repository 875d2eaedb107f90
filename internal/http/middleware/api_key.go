package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const ctxClientKey = "client_key"

// ClientFromCtx returns the fingerprint of the API key that authenticated the request.
func ClientFromCtx(c echo.Context) (string, bool) {
	v, ok := c.Get(ctxClientKey).(string)
	return v, ok && v != ""
}

// APIKeyMiddleware authenticates requests using the X-API-Key header against a
// fixed key set. An empty set disables authentication.
func APIKeyMiddleware(keys []string) echo.MiddlewareFunc {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(allowed) == 0 {
				return next(c)
			}

			key := []byte(strings.TrimSpace(c.Request().Header.Get("X-API-Key")))
			if len(key) == 0 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}

			match := false
			for _, a := range allowed {
				if subtle.ConstantTimeCompare(a, key) == 1 {
					match = true
				}
			}
			if !match {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}

			sum := sha256.Sum256(key)
			c.Set(ctxClientKey, hex.EncodeToString(sum[:8]))
			return next(c)
		}
	}
}
