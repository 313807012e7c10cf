package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TokenVerifier validates an admin bearer token and returns the caller's uid.
type TokenVerifier interface {
	VerifyAdmin(ctx context.Context, idToken string) (string, error)
}

// RequireAdmin rejects requests without a valid admin bearer token. A nil
// verifier means auth is not configured and every request gets 503.
func RequireAdmin(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "admin auth is not configured")
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			uid, err := verifier.VerifyAdmin(c.Request().Context(), strings.TrimSpace(token))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("userUID", uid)
			return next(c)
		}
	}
}
