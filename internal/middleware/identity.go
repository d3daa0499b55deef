package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// currentUserID returns a stable string identity for the requester, used by
// the rate limiter's per-user buckets.  JWTAuth stores the token's subject
// under "user_id"; it may arrive as a string or a JSON number depending on
// how the token was minted, so anything non-nil is rendered.  Requests
// without a session are attributed to "anon".
func currentUserID(c echo.Context) string {
	v := c.Get("user_id")
	if v == nil {
		return "anon"
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return "anon"
		}
		return s
	}
	return fmt.Sprint(v)
}
