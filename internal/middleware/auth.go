package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/poem-search-api/internal/models"
)

// exemptPaths bypass authentication
var exemptPaths = map[string]struct{}{
	"/health":        {},
	"/health/vector": {},
	"/metrics":       {},
}

// BearerAuthMiddleware validates "Authorization: Bearer <key>" against apiKeys.
// If apiKeys is empty, authentication is disabled.
func BearerAuthMiddleware(apiKeys []string) echo.MiddlewareFunc {
	validKeys := make([]string, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys = append(validKeys, k)
		}
	}

	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(c echo.Context) bool {
			if len(validKeys) == 0 {
				return true
			}
			_, ok := exemptPaths[c.Request().URL.Path]
			return ok
		},
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			for _, valid := range validKeys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
					return true, nil
				}
			}
			return false, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Error:   "invalid or missing api key",
			})
		},
	})
}
