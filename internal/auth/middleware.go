package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-request-service/internal/remote"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// APIKey authenticates service callers by the X-API-Key header. When no
// key hash is configured every caller is accepted as the service.
func APIKey(verifier *APIKeyVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if verifier.Enabled() {
			key := c.Get(remote.APIKeyHeader)
			if key == "" {
				return apperrors.NewUnauthorized("missing api key")
			}
			if !verifier.Verify(key) {
				return apperrors.NewUnauthorized("invalid api key")
			}
		}
		c.Locals(principalKey, &Principal{Subject: "api-key", Role: RoleService})
		return c.Next()
	}
}

// Bearer validates JWT bearer tokens.
func Bearer(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperrors.NewUnauthorized("missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.NewUnauthorized("invalid authorization header")
		}

		claims, err := tokens.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return apperrors.NewUnauthorized("invalid token")
		}
		if !claims.Role.Valid() {
			return apperrors.NewUnauthorized("unknown role")
		}

		c.Locals(principalKey, &Principal{Subject: claims.Email, Role: claims.Role})
		return c.Next()
	}
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
