package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles carried in the "roles" token claim.
const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleNurse     = "nurse"
	RoleRegistrar = "registrar"
	RoleViewer    = "viewer"
)

// Role sets for the bed board. Admin is implied by every set.
var (
	ReadRoles      = []string{RolePhysician, RoleNurse, RoleRegistrar, RoleViewer}
	EditRoles      = []string{RolePhysician, RoleNurse, RoleRegistrar}
	DischargeRoles = []string{RolePhysician, RoleNurse}
)

// HasAnyRole reports whether the caller holds admin or one of roles.
func HasAnyRole(have, roles []string) bool {
	for _, r := range have {
		if r == RoleAdmin || slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

// RequireRole rejects callers holding none of roles with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "required role: " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasAnyRole(RolesFromContext(c.Request().Context()), roles) {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}
