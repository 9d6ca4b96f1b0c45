package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type teardownHoneypotHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewTeardownHoneypotHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &teardownHoneypotHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Tear down a honeypot
// @Description Deactivates a honeypot; captured interactions stay queryable
// @Tags Honeypots
// @Param Authorization header string true "Authorization token"
// @Param honeypot_id path string true "Honeypot ID"
// @Success 204 "Honeypot torn down"
// @Failure 404 {object} map[string]interface{} "Honeypot not found"
// @Router /api/v1/honeypots/{honeypot_id} [delete]
func (h *teardownHoneypotHandler) Handle(c *fiber.Ctx) error {
	if err := h.engine.TeardownHoneypot(c.Params("honeypot_id")); err != nil {
		return respondError(c, h.logger, err, "failed to tear down honeypot")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
