// middleware/admin.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminContextMiddleware extracts the admin identity set by the Gateway and
// rejects requests without an "admin" role. Validity flips, winner selection,
// and claim-workflow actions are audit-logged against this identity.
func AdminContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		if adminID == "" {
			log.Printf("[ADMIN_CTX] X-User-ID required but missing on admin route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		isAdmin := false
		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			roles = append(roles, r)
			if r == "admin" {
				isAdmin = true
			}
		}
		if !isAdmin {
			log.Printf("[ADMIN_CTX] UserID=%s lacks admin role on %s (roles=%v)", adminID, c.Path(), roles)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}

		c.Locals("admin_id", adminID)
		c.Locals("admin_roles", roles)
		return c.Next()
	}
}
