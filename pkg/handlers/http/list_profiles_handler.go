package http

import (
	"sort"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listProfilesHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewListProfilesHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &listProfilesHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary List attacker profiles
// @Description Returns every tracked source profile, most severe and least reputable first
// @Tags Profiles
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Success 200 {array} profile.Snapshot "Profiles"
// @Router /api/v1/profiles [get]
func (h *listProfilesHandler) Handle(c *fiber.Ctx) error {
	profiles := h.engine.Profiles()
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].CurrentSeverity != profiles[j].CurrentSeverity {
			return profiles[i].CurrentSeverity > profiles[j].CurrentSeverity
		}
		return profiles[i].ReputationScore < profiles[j].ReputationScore
	})
	return c.Status(fiber.StatusOK).JSON(profiles)
}
