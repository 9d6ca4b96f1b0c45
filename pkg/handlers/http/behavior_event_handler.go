package http

import (
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/engine"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/behavior"
	"github.com/NeuralTrust/TrustSentinel/pkg/handlers/http/request"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type behaviorEventHandler struct {
	logger *logrus.Logger
	engine *engine.Engine
}

func NewBehaviorEventHandler(logger *logrus.Logger, engine *engine.Engine) Handler {
	return &behaviorEventHandler{
		logger: logger,
		engine: engine,
	}
}

// Handle @Summary Record a behavior event
// @Description Feeds one session signal to the behavior analyzer and returns the finding it produced, if any
// @Tags Ingest
// @Accept json
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param event body request.BehaviorEventRequest true "Behavior event"
// @Success 202 {object} map[string]interface{} "Event accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/events/behavior [post]
func (h *behaviorEventHandler) Handle(c *fiber.Ctx) error {
	var req request.BehaviorEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	f := h.engine.Observe(req.SourceID, req.SessionID, behavior.Signal{
		Timestamp: req.Timestamp,
		Path:      req.Path,
		Depth:     req.Depth,
		UserAgent: req.UserAgent,
	})
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"finding": f})
}
