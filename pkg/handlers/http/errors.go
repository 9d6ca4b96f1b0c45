package http

import (
	"errors"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const ErrInvalidJsonPayload = "invalid JSON payload"

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case domain.IsNotFoundError(err):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrHoneypotInactive):
		return fiber.StatusGone
	case errors.Is(err, domain.ErrLogUnavailable):
		return fiber.StatusServiceUnavailable
	case domain.IsEnforcementError(err):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, logger *logrus.Logger, err error, msg string) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.WithError(err).Error(msg)
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
