package http

import (
	"strconv"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listIncidentsHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewListIncidentsHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &listIncidentsHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary List recent incident records
// @Description Returns the most recent incident log records, newest first
// @Tags Incidents
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param limit query int false "Maximum number of records"
// @Success 200 {array} incident.Record "Incident records"
// @Failure 400 {object} map[string]interface{} "Invalid limit"
// @Failure 503 {object} map[string]interface{} "Incident log unavailable"
// @Router /api/v1/incidents [get]
func (h *listIncidentsHandler) Handle(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a non-negative integer"})
		}
		limit = n
	}
	if limit > common.MaxIncidentLimit {
		limit = common.MaxIncidentLimit
	}

	records, err := h.engine.Incidents(c.UserContext(), limit)
	if err != nil {
		return respondError(c, h.logger, err, "failed to read incident log")
	}
	return c.Status(fiber.StatusOK).JSON(records)
}
