package identity

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID = "user_id"
	localUser   = "user"
)

// TokenVerifier turns an access token into the user id it was issued to.
type TokenVerifier interface {
	ValidateAccessToken(token string) (string, error)
}

// Middleware validates the bearer token and stores the resolved user in
// locals.
func Middleware(verifier TokenVerifier, dir *Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		userID, err := verifier.ValidateAccessToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		user, err := dir.Lookup(c.Context(), userID)
		if err != nil {
			log.Printf("profile lookup for %s failed: %v", userID, err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "profile unavailable")
		}

		c.Locals(localUserID, user.ID)
		c.Locals(localUser, user)
		return c.Next()
	}
}

// Current returns the user stored by Middleware, or nil.
func Current(c *fiber.Ctx) *User {
	u, _ := c.Locals(localUser).(*User)
	return u
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
