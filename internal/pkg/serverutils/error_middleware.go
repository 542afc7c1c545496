package serverutils

import (
	"errors"

	"notesync-be/internal/entity"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/worker"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into JSON responses.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code := StatusOf(err)
		return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
	}
}

func StatusOf(err error) int {
	var fiberErr *fiber.Error
	var validationErr *ValidationError
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr), errors.Is(err, entity.ErrInvalidRecord):
		return fiber.StatusBadRequest
	case errors.Is(err, contract.ErrRecordNotFound), errors.Is(err, contract.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, contract.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, worker.ErrPoolSaturated), errors.Is(err, worker.ErrPoolClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
