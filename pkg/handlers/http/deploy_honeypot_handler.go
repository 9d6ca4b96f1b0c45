package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/handlers/http/request"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deployHoneypotHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewDeployHoneypotHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &deployHoneypotHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Deploy a honeypot
// @Description Deploys decoy resources for a source. Repeated deploys for the same source and kind return the active honeypot.
// @Tags Honeypots
// @Accept json
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param honeypot body request.DeployHoneypotRequest true "Honeypot data"
// @Success 201 {object} honeypot.Honeypot "Honeypot deployed"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/honeypots [post]
func (h *deployHoneypotHandler) Handle(c *fiber.Ctx) error {
	var req request.DeployHoneypotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	hp := h.engine.DeployHoneypot(req.SourceID, honeypot.Kind(req.Kind), req.Aggressive)
	return c.Status(fiber.StatusCreated).JSON(hp)
}
