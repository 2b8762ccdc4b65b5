package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/amirphl/Uwabami/app/dto"
)

// CustomerIdentity resolves the calling customer from the X-Customer-ID
// header set by the upstream API gateway, which owns authentication. Routes
// behind this middleware can rely on Locals("customer_id") being a uint.
func CustomerIdentity() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := c.Get("X-Customer-ID")
		if raw == "" {
			return unauthorized(c, "Missing X-Customer-ID header")
		}

		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return unauthorized(c, "Invalid X-Customer-ID header")
		}

		c.Locals("customer_id", uint(id))
		return c.Next()
	}
}

func unauthorized(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "UNAUTHORIZED",
		},
	})
}
