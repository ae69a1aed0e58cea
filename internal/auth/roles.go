package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/pkg/errorutil"
)

// RequireStaff ensures the caller holds the queue-management capability.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return errorutil.NewUnauthorized("authentication required")
		}
		if !principal.Role.CanManageQueue() {
			return errorutil.NewForbidden("staff access required")
		}
		return c.Next()
	}
}
