package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// Role identifies what a caller may do.
type Role string

const (
	// RoleService is granted to callers presenting the service API key.
	RoleService Role = "service"
	// RoleApprover is granted by approver tokens.
	RoleApprover Role = "approver"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleService || r == RoleApprover
}

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
