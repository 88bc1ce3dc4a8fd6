package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin      = "admin"
	RoleDoctor     = "doctor"
	RoleNurse      = "nurse"
	RolePharmacist = "pharmacist"
	RoleLabTech    = "labtech"
	RoleCashier    = "cashier"
	RoleEHR        = "ehr"
)

// Roles is the closed set of roles a user can hold.
var Roles = []string{RoleAdmin, RoleDoctor, RoleNurse, RolePharmacist, RoleLabTech, RoleCashier, RoleEHR}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasRole reports whether ctx's user holds any of roles. Admin holds every role.
func HasRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
