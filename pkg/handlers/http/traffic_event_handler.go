package http

import (
	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/traffic"
	"github.com/NeuralTrust/TrustSentinel/pkg/handlers/http/request"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type trafficEventHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewTrafficEventHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &trafficEventHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Record a traffic event
// @Description Records one request outcome against an endpoint window
// @Tags Ingest
// @Accept json
// @Param Authorization header string true "Authorization token"
// @Param event body request.TrafficEventRequest true "Traffic event"
// @Success 202 "Event accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/events/traffic [post]
func (h *trafficEventHandler) Handle(c *fiber.Ctx) error {
	var req request.TrafficEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	h.engine.Record(req.SourceID, req.Endpoint, traffic.Outcome{
		LatencyMs: req.LatencyMs,
		IsError:   req.IsError,
	})
	return c.SendStatus(fiber.StatusAccepted)
}
