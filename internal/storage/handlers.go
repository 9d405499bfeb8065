package storage

import (
	"backend-pilanitrails/internal/identity"
	"backend-pilanitrails/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/images", authMiddleware, func(c *fiber.Ctx) error {
		header, err := c.FormFile("file")
		if err != nil {
			return apperr.Respond(c, apperr.Invalid("file", "multipart field is required"))
		}
		f, err := header.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer f.Close()

		up, err := svc.SaveImage(c.Context(), identity.Current(c), header.Header.Get(fiber.HeaderContentType), f, header.Size)
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(up)
	})
}
