package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id stored by JWTAuth.  JSON numbers
// decode as float64 and some issuers send the subject as a string; both
// are accepted.
func UserID(c echo.Context) (uint64, bool) {
	return parseID(c.Get("user_id"))
}

func parseID(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, t > 0
	case int64:
		return uint64(t), t > 0
	case int:
		return uint64(t), t > 0
	case float64:
		return uint64(t), t > 0 && t == float64(uint64(t))
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// clientID identifies the caller for rate limiting: the user when
// authenticated, the remote address otherwise.
func clientID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return "user:" + strconv.FormatUint(id, 10)
	}
	if ip := c.RealIP(); ip != "" {
		return "ip:" + ip
	}
	return ""
}
