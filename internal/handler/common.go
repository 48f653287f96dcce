package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// errNoAccount is returned by getAccountID when the context carries
// no usable account identifier.
var errNoAccount = errors.New("no account id in context")

// getAccountID extracts the authenticated account id stored by the
// JWT middleware.  The sub claim arrives as a float64 when decoded
// from JSON, but tokens minted by other services may carry a string,
// so both are accepted.
func getAccountID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch id := v.(type) {
	case float64:
		if id <= 0 {
			return 0, errNoAccount
		}
		return uint64(id), nil
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil || n == 0 {
			return 0, errNoAccount
		}
		return n, nil
	case uint64:
		if id == 0 {
			return 0, errNoAccount
		}
		return id, nil
	default:
		return 0, errNoAccount
	}
}

// isAdmin reports whether the JWT middleware stored the ADMIN role
// in the context.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get("role").(string)
	return role == "ADMIN"
}
