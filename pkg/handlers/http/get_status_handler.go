package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getStatusHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewGetStatusHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &getStatusHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Get threat status
// @Description Returns the current threat level, active countermeasures, recent incidents and degradation reasons
// @Tags Status
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Success 200 {object} engine.Status "Threat status"
// @Router /api/v1/status [get]
func (h *getStatusHandler) Handle(c *fiber.Ctx) error {
	status := h.engine.Status(c.UserContext())
	if status.Stale {
		h.logger.WithField("degraded", status.Degraded).Debug("serving stale status")
	}
	return c.Status(fiber.StatusOK).JSON(status)
}
