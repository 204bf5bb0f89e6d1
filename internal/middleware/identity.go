package middleware

import (
	"fmt"
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Roles carried in the access token's role claim.
const (
	RoleApplicant = "APPLICANT"
	RoleAdmin     = "ADMIN"
)

// Subject returns the token subject as a string, or "" for anonymous
// requests.
func Subject(c echo.Context) string {
	switch v := c.Get(ctxUserID).(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64. Anything that is not an exact
		// integer keeps its float form so UserID rejects it.
		if v == math.Trunc(v) && v >= 0 && v <= 1<<53 {
			return strconv.FormatUint(uint64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// UserID returns the numeric subject of the access token. Only positive
// integers are user IDs.
func UserID(c echo.Context) (uint64, bool) {
	s := Subject(c)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Role returns the role claim, or "" when absent.
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

func userKey(c echo.Context) string {
	if s := Subject(c); s != "" {
		return s
	}
	return "anon"
}
