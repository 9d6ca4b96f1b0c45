package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type releaseProfileHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewReleaseProfileHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &releaseProfileHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Release a source after manual review
// @Description Lifts blocks and throttles and resets the profile to WATCHED
// @Tags Profiles
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param source_id path string true "Source ID"
// @Success 200 {object} profile.Snapshot "Released profile"
// @Failure 404 {object} map[string]interface{} "Profile not found"
// @Failure 502 {object} map[string]interface{} "Enforcer failed to lift the block"
// @Router /api/v1/profiles/{source_id}/release [post]
func (h *releaseProfileHandler) Handle(c *fiber.Ctx) error {
	sourceID := c.Params("source_id")
	snapshot, err := h.engine.Release(c.UserContext(), sourceID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to release source")
	}
	h.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"operator":  c.Locals(common.OperatorContextKey),
	}).Info("profile released")
	return c.Status(fiber.StatusOK).JSON(snapshot)
}
