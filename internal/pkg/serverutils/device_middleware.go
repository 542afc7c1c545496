package serverutils

import "github.com/gofiber/fiber/v2"

type Device struct {
	ID   string
	Type string
}

// DeviceMiddleware records which client device issued the request.
func DeviceMiddleware(ctx *fiber.Ctx) error {
	ctx.Locals("device", Device{
		ID:   ctx.Get("X-Device-Id"),
		Type: ctx.Get("X-Device-Type", "unknown"),
	})
	return ctx.Next()
}

func DeviceOf(ctx *fiber.Ctx) Device {
	d, _ := ctx.Locals("device").(Device)
	return d
}
