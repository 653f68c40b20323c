package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// apiKeyAuth requires the x-api-key header to match key. A missing header and
// a wrong key are both reported as 401.
func apiKeyAuth(key string) echo.MiddlewareFunc {
	expected := []byte(key)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + apiKeyHeader,
		Validator: func(candidate string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(candidate), expected) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return requestError{
				Status:  http.StatusUnauthorized,
				Message: "Invalid API Key",
				Type:    "authentication_error",
				Code:    "invalid_api_key",
			}
		},
	})
}
