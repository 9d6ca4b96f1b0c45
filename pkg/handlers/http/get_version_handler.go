package http

import (
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/version"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type VersionResponse struct {
	version.Info
	UptimeSeconds int64 `json:"uptime_seconds"`
}

type getVersionHandler struct {
	logger  *logrus.Logger
	started time.Time
}

func NewGetVersionHandler(logger *logrus.Logger) Handler {
	return &getVersionHandler{
		logger:  logger,
		started: time.Now(),
	}
}

// Handle @Summary Get TrustSentinel version
// @Description Build information and process uptime. Does not require a token.
// @Tags Version
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /api/v1/version [get]
func (h *getVersionHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(VersionResponse{
		Info:          version.Current(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}
