package proposal

import (
	"fmt"
	"strconv"

	"backend-pilanitrails/internal/identity"
	"backend-pilanitrails/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Post("/", func(c *fiber.Ctx) error {
		var req Submission
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id, err := svc.Submit(c.Context(), req, identity.Current(c))
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "status": StatusPending})
	})

	r.Get("/", func(c *fiber.Ctx) error {
		list, err := svc.ListByStatus(c.Context(), c.Query("status", StatusAll), identity.Current(c))
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(list)
	})

	r.Get("/mine", func(c *fiber.Ctx) error {
		mine, err := svc.Mine(c.Context(), identity.Current(c))
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(mine)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		p, err := svc.Get(c.Context(), c.Params("id"), identity.Current(c))
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(p)
	})

	r.Post("/:id/approve", func(c *fiber.Ctx) error {
		if err := svc.Approve(c.Context(), c.Params("id"), identity.Current(c)); err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "status": StatusApproved})
	})

	r.Post("/:id/publish", func(c *fiber.Ctx) error {
		if err := svc.Publish(c.Context(), c.Params("id"), identity.Current(c)); err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "published": true})
	})

	r.Post("/:id/reject", func(c *fiber.Ctx) error {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.Reject(c.Context(), c.Params("id"), identity.Current(c), body.Reason); err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "status": StatusRejected})
	})

	r.Patch("/:id", func(c *fiber.Ctx) error {
		var body map[string]any
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		p, err := svc.Edit(c.Context(), c.Params("id"), identity.Current(c), textChanges(body))
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(p)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("id"), identity.Current(c)); err != nil {
			return apperr.Respond(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/vote", func(c *fiber.Ctx) error {
		var body struct {
			Value int `json:"value"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		p, err := svc.Vote(c.Context(), c.Params("id"), identity.Current(c), body.Value)
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(p)
	})
}

// textChanges flattens an edit body to the text form admin forms submit.
func textChanges(body map[string]any) map[string]string {
	out := make(map[string]string, len(body))
	for k, v := range body {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
