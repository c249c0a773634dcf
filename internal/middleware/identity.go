package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// subject converts a JWT sub claim into an account id.
func subject(v any) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// UserID returns the authenticated account id, or 0 when the request is
// anonymous.
func UserID(c echo.Context) uint64 {
	if id, ok := c.Get(KeyUserID).(uint64); ok {
		return id
	}
	return 0
}

// userKey is the identity used in rate limit and cache keys.
func userKey(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
