package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getIntelligenceHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewGetIntelligenceHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &getIntelligenceHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Get honeypot intelligence for a source
// @Description Summarizes every honeypot engagement of a source. Unknown sources yield an empty summary.
// @Tags Honeypots
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param source_id path string true "Source ID"
// @Success 200 {object} honeypot.Intelligence "Engagement summary"
// @Router /api/v1/intelligence/{source_id} [get]
func (h *getIntelligenceHandler) Handle(c *fiber.Ctx) error {
	sourceID := c.Params("source_id")
	return c.Status(fiber.StatusOK).JSON(h.engine.HoneypotIntelligence(sourceID))
}
