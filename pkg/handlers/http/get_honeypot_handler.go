package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getHoneypotHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewGetHoneypotHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &getHoneypotHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Get a honeypot
// @Description Returns a honeypot with its decoy resources and captured interactions
// @Tags Honeypots
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param honeypot_id path string true "Honeypot ID"
// @Success 200 {object} honeypot.Honeypot "Honeypot"
// @Failure 404 {object} map[string]interface{} "Honeypot not found"
// @Router /api/v1/honeypots/{honeypot_id} [get]
func (h *getHoneypotHandler) Handle(c *fiber.Ctx) error {
	hp, err := h.engine.Honeypot(c.Params("honeypot_id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load honeypot")
	}
	return c.Status(fiber.StatusOK).JSON(hp)
}
