package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireUser returns a middleware function that enforces that JWTAuth ran
// and stored an authenticated user in the context.  There is no per-account
// role to check: whether the user may act as owner or renter on a given
// booking is decided by the lifecycle layer from the booking itself.  If
// no user is present the request is aborted with 401 Unauthorized.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Get("user_id") == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
