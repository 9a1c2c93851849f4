package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderUserID carries the caller's identity. Authentication happens in
// front of this service.
const HeaderUserID = "X-User-ID"

const userIDKey = "user_id"

// Identity copies the X-User-ID header into the request context. A missing
// header is not an error here; the ledger rejects anonymous writes.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(userIDKey, strings.TrimSpace(c.Request().Header.Get(HeaderUserID)))
			return next(c)
		}
	}
}

// UserID returns the identity set by Identity, or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
