package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getProfileHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewGetProfileHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &getProfileHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Get an attacker profile
// @Description Returns the profile of one source
// @Tags Profiles
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param source_id path string true "Source ID"
// @Success 200 {object} profile.Snapshot "Profile"
// @Failure 404 {object} map[string]interface{} "Profile not found"
// @Router /api/v1/profiles/{source_id} [get]
func (h *getProfileHandler) Handle(c *fiber.Ctx) error {
	snapshot, err := h.engine.Profile(c.UserContext(), c.Params("source_id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load profile")
	}
	return c.Status(fiber.StatusOK).JSON(snapshot)
}
