package identity

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		user := Current(c)
		if user == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "not signed in")
		}
		return c.JSON(user)
	})
}
