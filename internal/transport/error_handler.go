package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorHandler renders errors as {"error": message}. Client errors are
// logged at warn, everything else at error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		level := zapcore.ErrorLevel
		if code < fiber.StatusInternalServerError {
			level = zapcore.WarnLevel
		}
		logger.Log(level, "request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		message := err.Error()
		if code == fiber.StatusInternalServerError && fiberErr == nil {
			message = "internal error"
		}
		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
