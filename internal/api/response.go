package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// domainError maps a domain sentinel to its HTTP response. Losing an
// acceptance race reads as "quote is no longer available" so clients
// can show it verbatim.
func domainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, model.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not the owner"})
	case errors.Is(err, model.ErrAlreadyClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "quote is no longer available"})
	case errors.Is(err, model.ErrExpired):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "quote validity deadline has passed"})
	case errors.Is(err, model.ErrAlreadyConverted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "quote already converted to an order"})
	case errors.Is(err, model.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func validationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
